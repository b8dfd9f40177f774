package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"repochat/internal/domain"
	"repochat/internal/indexing"
	"repochat/internal/logging"
	"repochat/internal/query"
	"repochat/internal/repository"
)

// Channel sizes used by callers wiring a Coordinator.
const (
	CommandBuffer = 16
	EventBuffer   = 64
)

// Indexer runs the indexing pipeline.
type Indexer interface {
	Run(ctx context.Context, repo *repository.Repository, opts indexing.Options, progress func(indexing.Progress)) (indexing.Summary, error)
}

// Answerer runs the query pipeline.
type Answerer interface {
	Answer(ctx context.Context, repo *repository.Repository, question string) (query.AnswerStream, error)
}

type activeRun struct {
	id     string
	state  State
	cancel context.CancelFunc
}

// Coordinator accepts commands and runs at most one pipeline at a time.
// State transitions happen only on the goroutine calling Run.
type Coordinator struct {
	repo     *repository.Repository
	indexer  Indexer
	answerer Answerer
	commands <-chan Command
	events   chan<- Event
	log      zerolog.Logger

	mu    sync.Mutex
	state State

	run      *activeRun
	done     chan string
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Coordinator reading commands and writing events.
func New(repo *repository.Repository, indexer Indexer, answerer Answerer,
	commands <-chan Command, events chan<- Event, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo:     repo,
		indexer:  indexer,
		answerer: answerer,
		commands: commands,
		events:   events,
		log:      log,
		done:     make(chan string, 1),
		stop:     make(chan struct{}),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run processes commands until ctx is done or the command channel is
// closed. On return no run is in flight.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.shutdown()

	// emits blocked on a full event channel must not outlive ctx
	go func() {
		select {
		case <-ctx.Done():
			c.closeStop()
		case <-c.stop:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-c.commands:
			if !ok {
				return nil
			}
			c.handle(ctx, cmd)
		case id := <-c.done:
			c.finish(id)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case StartIndexing:
		if c.rejectBusy("indexing") {
			return
		}
		c.start(ctx, StateIndexing, func(runCtx context.Context, id string, log zerolog.Logger) {
			c.index(runCtx, id, log, cmd)
		})
	case SubmitQuery:
		if c.rejectBusy("query") {
			return
		}
		c.start(ctx, StateQuerying, func(runCtx context.Context, id string, log zerolog.Logger) {
			c.answer(runCtx, id, log, cmd)
		})
	case Cancel:
		if c.run == nil {
			return
		}
		c.log.Info().Str("run_id", c.run.id).Str("operation", c.run.state.String()).Msg("cancelling run")
		c.run.cancel()
	default:
		c.log.Warn().Str("command", fmt.Sprintf("%T", cmd)).Msg("ignoring unknown command")
	}
}

// rejectBusy reports an error and returns true while a run is in flight.
func (c *Coordinator) rejectBusy(requested string) bool {
	if c.run == nil {
		return false
	}
	c.emit(Error{
		Text: fmt.Sprintf("cannot start %s: %s is in progress (press esc to cancel it)", requested, c.run.state),
		Kind: domain.KindUnknown,
	})
	return true
}

func (c *Coordinator) start(ctx context.Context, state State, fn func(context.Context, string, zerolog.Logger)) {
	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	c.run = &activeRun{id: id, state: state, cancel: cancel}
	c.setState(state)
	c.emit(StateChanged{RunRef: RunRef{id}, State: state})

	log := logging.ForRun(c.log, id, state.String())
	log.Info().Msg("run started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("run panicked")
				c.emit(Error{RunRef: RunRef{id}, Text: fmt.Sprintf("internal error: %v", r)})
			}
			c.done <- id
		}()
		fn(runCtx, id, log)
	}()
}

func (c *Coordinator) finish(id string) {
	if c.run == nil || c.run.id != id {
		return
	}
	c.run = nil
	c.setState(StateIdle)
	c.emit(StateChanged{RunRef: RunRef{id}, State: StateIdle})
}

func (c *Coordinator) index(ctx context.Context, id string, log zerolog.Logger, cmd StartIndexing) {
	ref := RunRef{id}
	c.emit(Info{RunRef: ref, Text: fmt.Sprintf("Indexing %s ...", c.repo.Path())})

	summary, err := c.indexer.Run(ctx, c.repo, indexing.Options{Reset: cmd.Reset}, func(p indexing.Progress) {
		c.emit(IndexingProgress{RunRef: ref, Stage: string(p.Stage), Done: p.Done, Total: p.Total})
	})
	if err != nil {
		c.failed(ref, log, "Indexing", err)
		return
	}

	text := fmt.Sprintf("Indexed %d files into %d chunks.", summary.Files, summary.Stored)
	if summary.Skipped > 0 {
		text += fmt.Sprintf(" %d chunks were skipped because metadata generation failed; see the log.", summary.Skipped)
	}
	log.Info().Int("stored", summary.Stored).Int("skipped", summary.Skipped).Msg("run finished")
	c.emit(Info{RunRef: ref, Text: text})
}

func (c *Coordinator) answer(ctx context.Context, id string, log zerolog.Logger, cmd SubmitQuery) {
	ref := RunRef{id}

	stream, err := c.answerer.Answer(ctx, c.repo, cmd.Text)
	if err != nil {
		c.failed(ref, log, "Query", err)
		return
	}
	for f := range stream {
		if f.Err != nil {
			c.failed(ref, log, "Query", f.Err)
			return
		}
		if f.Text != "" {
			c.emit(QueryAnswerChunk{RunRef: ref, Text: f.Text})
		}
	}
	if err := ctx.Err(); err != nil {
		c.failed(ref, log, "Query", err)
		return
	}
	log.Info().Msg("run finished")
	c.emit(QueryComplete{RunRef: ref})
}

func (c *Coordinator) failed(ref RunRef, log zerolog.Logger, op string, err error) {
	kind := domain.Classify(err)
	if kind == domain.KindCancelled {
		log.Info().Msg("run cancelled")
		c.emit(Info{RunRef: ref, Text: op + " cancelled."})
		return
	}
	log.Error().Err(err).Str("kind", kind.String()).Msg("run failed")
	c.emit(Error{RunRef: ref, Text: fmt.Sprintf("%s failed (%s): %v", op, kind, err), Kind: kind})
}

// emit delivers an event unless the Coordinator is shutting down.
func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.stop:
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) shutdown() {
	if c.run != nil {
		c.run.cancel()
	}
	c.closeStop()
	c.wg.Wait()
	if c.run != nil {
		c.run = nil
		c.setState(StateIdle)
	}
}

func (c *Coordinator) closeStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
