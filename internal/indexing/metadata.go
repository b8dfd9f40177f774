package indexing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"repochat/internal/config"
	"repochat/internal/domain"
	"repochat/internal/provider"
)

const metadataPrompt = `Task: You are a senior engineer documenting a code repository.
Write up to 5 questions a developer could ask that this code answers, each
followed by a short answer. Use the format:

Q1: <question>
A1: <answer>

Only use what is in the code.

File: %s
Language: %s

Code:
%s
`

// MetadataPrompt renders the prompt sent for a chunk.
func MetadataPrompt(c domain.Chunk) string {
	lang := c.Metadata[domain.MetaLanguage]
	if lang == "" {
		lang = "text"
	}
	return fmt.Sprintf(metadataPrompt, c.Path, lang, c.Text)
}

// leadingFailureLimit is how many chunks may fail before the first success
// before a skip-policy run gives up.
const leadingFailureLimit = 16

// annotator generates the questions-and-answers metadata for chunks. It
// lives for one run and counts outcomes across batches.
type annotator struct {
	completer   domain.Completer
	name        string
	concurrency int
	abort       bool
	log         zerolog.Logger

	succeeded int
	failures  int
	firstErr  error
}

func newAnnotator(h *provider.Handle, cfg config.IndexingConfig, log zerolog.Logger) *annotator {
	return &annotator{
		completer:   h.Completer,
		name:        h.Name,
		concurrency: max(cfg.Concurrency, 1),
		abort:       cfg.MetadataFailure == config.MetadataFailureAbort,
		log:         log,
	}
}

// annotate returns the chunks of batch that received metadata, in order.
// Under the skip policy failing chunks are dropped; the run fails only when
// the provider is unreachable or leadingFailureLimit chunks failed before
// any succeeded. Under the abort policy the first failure fails the run.
func (a *annotator) annotate(ctx context.Context, batch []domain.Chunk) ([]domain.Chunk, error) {
	results := make([]string, len(batch))
	failed := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := a.completer.Complete(gctx, MetadataPrompt(batch[i]))
			if err == nil {
				results[i] = text
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			err = fmt.Errorf("metadata for %s (chunk %d) via %s: %w", batch[i].Path, batch[i].Index, a.name, err)
			if a.abort || errors.Is(err, domain.ErrProviderUnreachable) {
				return err
			}
			failed[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(batch))
	for i, c := range batch {
		if failed[i] != nil {
			a.log.Warn().Err(failed[i]).Str("chunk_id", c.ID).Msg("skipping chunk without metadata")
			a.failures++
			if a.firstErr == nil {
				a.firstErr = failed[i]
			}
			continue
		}
		a.succeeded++
		c.Metadata = cloneMetadata(c.Metadata)
		c.Metadata[domain.MetaQA] = results[i]
		out = append(out, c)
	}
	if a.succeeded == 0 && a.failures >= leadingFailureLimit {
		return nil, fmt.Errorf("metadata generation failed for the first %d chunks: %w", a.failures, a.firstErr)
	}
	return out, nil
}

// check fails a run in which no chunk received metadata.
func (a *annotator) check() error {
	if a.succeeded == 0 && a.failures > 0 {
		return fmt.Errorf("metadata generation failed for every chunk: %w", a.firstErr)
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
