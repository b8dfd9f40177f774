// Package indexing loads, chunks, annotates, embeds and stores a repository.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"repochat/internal/chunker"
	"repochat/internal/domain"
	"repochat/internal/loader"
	"repochat/internal/provider"
	"repochat/internal/repository"
	"repochat/internal/vectorstore"
)

// Resolver resolves provider selectors into handles.
type Resolver interface {
	ResolveCompletion(selector string) (*provider.Handle, error)
	ResolveEmbedding(selector string) (*provider.Handle, error)
}

// Stage names a step of an indexing run.
type Stage string

const (
	StageLoading  Stage = "loading"
	StageChunking Stage = "chunking"
	StageIndexing Stage = "indexing"
	StageDone     Stage = "done"
)

// Progress reports how far a stage has come.
type Progress struct {
	Stage Stage
	Done  int
	Total int
}

// Summary describes a completed run.
type Summary struct {
	Files   int
	Chunks  int
	Skipped int
	Stored  int
}

// Options tunes a run.
type Options struct {
	// Reset drops the existing index before indexing.
	Reset bool
}

// Pipeline indexes a repository into a vector store.
type Pipeline struct {
	resolver Resolver
	store    vectorstore.Store
	log      zerolog.Logger
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(resolver Resolver, store vectorstore.Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{resolver: resolver, store: store, log: log}
}

// Run indexes repo. No new stage or batch starts after ctx is cancelled;
// batches already stored stay stored. progress may be nil.
func (p *Pipeline) Run(ctx context.Context, repo *repository.Repository, opts Options, progress func(Progress)) (Summary, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	cfg := repo.Config()
	var summary Summary

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	completion, err := p.resolver.ResolveCompletion(cfg.IndexingProvider)
	if err != nil {
		return summary, fmt.Errorf("indexing_provider: %w", err)
	}
	embedding, err := p.resolver.ResolveEmbedding(cfg.EmbeddingProvider)
	if err != nil {
		return summary, fmt.Errorf("embedding_provider: %w", err)
	}

	if err := p.prepareStore(ctx, repo, embedding.Identity(), opts.Reset); err != nil {
		return summary, err
	}

	// Loading
	progress(Progress{Stage: StageLoading})
	l, err := loader.New(loader.Options{
		Root:       repo.Path(),
		Language:   string(cfg.Language),
		Extensions: cfg.Language.FileExtensions(),
		Ignore:     cfg.Indexing.Ignore,
		SkipDirs:   []string{repo.CacheDir(), repo.LogDir()},
		Logger:     p.log,
	})
	if err != nil {
		return summary, err
	}
	docs, err := l.Load(ctx)
	if err != nil {
		return summary, err
	}
	summary.Files = len(docs)
	progress(Progress{Stage: StageLoading, Done: len(docs), Total: len(docs)})
	p.log.Info().Int("files", len(docs)).Msg("loaded files")

	// Chunking
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	ch := chunker.New(cfg.Indexing.ChunkMin, cfg.Indexing.ChunkMax)
	var chunks []domain.Chunk
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		docChunks, err := ch.Chunk(doc)
		if err != nil {
			p.log.Warn().Err(err).Str("path", doc.Path).Msg("skipping file that failed to chunk")
			continue
		}
		chunks = append(chunks, docChunks...)
		progress(Progress{Stage: StageChunking, Done: i + 1, Total: len(docs)})
	}
	summary.Chunks = len(chunks)
	p.log.Info().Int("chunks", len(chunks)).Msg("chunked files")

	// Metadata, embedding and storage, one batch at a time
	annotator := newAnnotator(completion, cfg.Indexing, p.log)
	batchSize := max(cfg.Indexing.BatchSize, 1)
	manifestWritten := false
	progress(Progress{Stage: StageIndexing, Total: len(chunks)})

	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := chunks[start:min(start+batchSize, len(chunks))]

		annotated, err := annotator.annotate(ctx, batch)
		if err != nil {
			return summary, err
		}
		summary.Skipped += len(batch) - len(annotated)

		if len(annotated) > 0 {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			records, err := embed(ctx, embedding, annotated)
			if err != nil {
				return summary, err
			}
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if err := p.store.Upsert(ctx, records); err != nil {
				return summary, err
			}
			summary.Stored += len(records)

			if !manifestWritten {
				m := vectorstore.Manifest{
					EmbeddingIdentity: embedding.Identity(),
					Dimension:         len(records[0].Vector),
					Store:             cfg.VectorStore.Kind,
					Language:          string(cfg.Language),
					UpdatedAt:         time.Now().UTC(),
				}
				if err := vectorstore.WriteManifest(repo.CacheDir(), m); err != nil {
					return summary, err
				}
				manifestWritten = true
			}
		}

		done := start + len(batch)
		progress(Progress{Stage: StageIndexing, Done: done, Total: len(chunks)})
		p.log.Debug().Int("done", done).Int("total", len(chunks)).Msg("stored batch")
	}

	if err := annotator.check(); err != nil {
		return summary, err
	}

	progress(Progress{Stage: StageDone, Done: summary.Stored, Total: summary.Chunks})
	p.log.Info().
		Int("files", summary.Files).
		Int("chunks", summary.Chunks).
		Int("stored", summary.Stored).
		Int("skipped", summary.Skipped).
		Msg("indexing finished")
	return summary, nil
}

// prepareStore clears the index when asked to, or when it was built with a
// different embedding space.
func (p *Pipeline) prepareStore(ctx context.Context, repo *repository.Repository, identity string, reset bool) error {
	if !reset {
		m, err := vectorstore.ReadManifest(repo.CacheDir())
		switch {
		case err == nil && m.EmbeddingIdentity == identity:
			return nil
		case err == nil:
			p.log.Info().
				Str("previous", m.EmbeddingIdentity).
				Str("current", identity).
				Msg("embedding provider changed, rebuilding index")
		case errors.Is(err, vectorstore.ErrNoIndex):
			return nil
		default:
			return err
		}
	}
	if err := p.store.Reset(ctx); err != nil {
		return err
	}
	return vectorstore.RemoveManifest(repo.CacheDir())
}

func embed(ctx context.Context, h *provider.Handle, chunks []domain.Chunk) ([]vectorstore.Record, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embeddable(c)
	}
	vectors, err := h.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d chunks", domain.ErrProvider, h.Name, len(vectors), len(chunks))
	}
	records := make([]vectorstore.Record, len(chunks))
	for i := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("%w: %s returned an empty embedding", domain.ErrProvider, h.Name)
		}
		records[i] = vectorstore.Record{Chunk: chunks[i], Vector: vectors[i]}
	}
	return records, nil
}

// embeddable is the text embedded for a chunk: its metadata followed by
// the code.
func embeddable(c domain.Chunk) string {
	s := domain.MetaPath + ": " + c.Path + "\n"
	if qa := c.Metadata[domain.MetaQA]; qa != "" {
		s += domain.MetaQA + ": " + qa + "\n"
	}
	return s + "\n" + c.Text
}
