// Package commands runs indexing and query pipelines on behalf of the UI.
// The UI sends Commands and receives Events; the Coordinator owns the
// pipeline lifecycle between them.
package commands

import "repochat/internal/domain"

// State is the Coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateIndexing
	StateQuerying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIndexing:
		return "indexing"
	case StateQuerying:
		return "querying"
	default:
		return "unknown"
	}
}

// Command is a request from the UI.
type Command interface {
	isCommand()
}

// StartIndexing indexes the repository.
type StartIndexing struct {
	// Reset drops the existing index first.
	Reset bool
}

// SubmitQuery asks a question about the repository.
type SubmitQuery struct {
	Text string
}

// Cancel stops the in-flight run, if any.
type Cancel struct{}

func (StartIndexing) isCommand() {}
func (SubmitQuery) isCommand()   {}
func (Cancel) isCommand()        {}

// Event is a notification for the UI.
type Event interface {
	// Run returns the ID of the run that produced the event, or "" for
	// events not tied to a run.
	Run() string
	isEvent()
}

// RunRef ties an event to a run.
type RunRef struct {
	RunID string
}

func (r RunRef) Run() string { return r.RunID }
func (RunRef) isEvent()      {}

// Info is an informational message.
type Info struct {
	RunRef
	Text string
}

// Error reports a failed command or run.
type Error struct {
	RunRef
	Text string
	Kind domain.Kind
}

// IndexingProgress reports indexing progress.
type IndexingProgress struct {
	RunRef
	Stage string
	Done  int
	Total int
}

// QueryAnswerChunk is a fragment of an answer.
type QueryAnswerChunk struct {
	RunRef
	Text string
}

// QueryComplete ends a successful answer.
type QueryComplete struct {
	RunRef
}

// StateChanged reports a Coordinator state transition.
type StateChanged struct {
	RunRef
	State State
}
