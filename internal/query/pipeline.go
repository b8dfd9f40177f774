// Package query answers questions about an indexed repository.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"repochat/internal/domain"
	"repochat/internal/provider"
	"repochat/internal/repository"
	"repochat/internal/vectorstore"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Resolver resolves provider selectors into handles.
type Resolver interface {
	ResolveCompletion(selector string) (*provider.Handle, error)
	ResolveEmbedding(selector string) (*provider.Handle, error)
}

// AnswerStream yields answer fragments and is closed when the answer ends.
type AnswerStream <-chan domain.Fragment

// Retrieval is the context gathered for a question.
type Retrieval struct {
	Questions []string
	Results   []domain.SearchResult
}

// Pipeline retrieves context from the vector store and generates answers.
// It never writes to the store.
type Pipeline struct {
	resolver Resolver
	store    vectorstore.Store
	cache    *lru.Cache[string, []float32]
	log      zerolog.Logger
}

// NewPipeline creates a query pipeline. cacheSize bounds the number of
// question embeddings kept in memory.
func NewPipeline(resolver Resolver, store vectorstore.Store, cacheSize int, log zerolog.Logger) (*Pipeline, error) {
	cache, err := lru.New[string, []float32](max(cacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Pipeline{resolver: resolver, store: store, cache: cache, log: log}, nil
}

// Answer retrieves context for question and streams the generated answer.
func (p *Pipeline) Answer(ctx context.Context, repo *repository.Repository, question string) (AnswerStream, error) {
	completion, err := p.resolver.ResolveCompletion(repo.Config().QueryProvider)
	if err != nil {
		return nil, fmt.Errorf("query_provider: %w", err)
	}

	retrieval, err := p.retrieve(ctx, repo, completion, question)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := AnswerPrompt(strings.TrimSpace(question), retrieval.Results)
	p.log.Debug().
		Int("questions", len(retrieval.Questions)).
		Int("results", len(retrieval.Results)).
		Msg("generating answer")

	if sc, ok := completion.Completer.(domain.StreamCompleter); ok {
		stream, err := sc.CompleteStream(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("answer: %w", err)
		}
		return stream, nil
	}

	text, err := completion.Completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	out := make(chan domain.Fragment, 1)
	out <- domain.Fragment{Text: text}
	close(out)
	return out, nil
}

// Retrieve gathers the context Answer would use, without generating an
// answer.
func (p *Pipeline) Retrieve(ctx context.Context, repo *repository.Repository, question string) (Retrieval, error) {
	completion, err := p.resolver.ResolveCompletion(repo.Config().QueryProvider)
	if err != nil {
		return Retrieval{}, fmt.Errorf("query_provider: %w", err)
	}
	return p.retrieve(ctx, repo, completion, question)
}

func (p *Pipeline) retrieve(ctx context.Context, repo *repository.Repository, completion *provider.Handle, question string) (Retrieval, error) {
	cfg := repo.Config()
	question = strings.TrimSpace(question)
	if question == "" {
		return Retrieval{}, ErrEmptyQuestion
	}
	if err := ctx.Err(); err != nil {
		return Retrieval{}, err
	}

	embedding, err := p.resolver.ResolveEmbedding(cfg.EmbeddingProvider)
	if err != nil {
		return Retrieval{}, fmt.Errorf("embedding_provider: %w", err)
	}
	manifest, err := vectorstore.ReadManifest(repo.CacheDir())
	if err != nil {
		return Retrieval{}, err
	}
	if err := manifest.Compatible(embedding.Identity(), 0); err != nil {
		return Retrieval{}, err
	}

	questions := []string{question}
	if cfg.Query.Subquestions > 0 {
		subs, err := p.subquestions(ctx, completion, question, cfg.Query.Subquestions)
		if err != nil {
			if ctx.Err() != nil {
				return Retrieval{}, ctx.Err()
			}
			p.log.Warn().Err(err).Msg("sub-question generation failed, using the question alone")
		}
		questions = appendUnique(questions, subs...)
	}

	if err := ctx.Err(); err != nil {
		return Retrieval{}, err
	}
	vectors, err := p.embed(ctx, embedding, questions)
	if err != nil {
		return Retrieval{}, err
	}
	if err := manifest.Compatible(embedding.Identity(), len(vectors[0])); err != nil {
		return Retrieval{}, err
	}

	best := make(map[string]domain.SearchResult)
	for _, vec := range vectors {
		if err := ctx.Err(); err != nil {
			return Retrieval{}, err
		}
		results, err := p.store.NearestNeighbors(ctx, vec, cfg.Query.TopK)
		if err != nil {
			return Retrieval{}, err
		}
		for _, r := range results {
			if prev, ok := best[r.Chunk.ID]; !ok || r.Score > prev.Score {
				best[r.Chunk.ID] = r
			}
		}
	}

	merged := make([]domain.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	vectorstore.SortResults(merged)
	return Retrieval{Questions: questions, Results: merged}, nil
}

// embed returns one vector per text, serving repeats from the cache.
func (p *Pipeline) embed(ctx context.Context, h *provider.Handle, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := p.cache.Get(cacheKey(h, t)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vectors, err := h.Embedder.Embed(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("%w: %s returned %d embeddings for %d questions", domain.ErrProvider, h.Name, len(vectors), len(missing))
		}
		for j, i := range missingIdx {
			out[i] = vectors[j]
			p.cache.Add(cacheKey(h, missing[j]), vectors[j])
		}
	}
	for _, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %s returned an empty embedding", domain.ErrProvider, h.Name)
		}
	}
	return out, nil
}

func cacheKey(h *provider.Handle, text string) string {
	return h.Identity() + "\x00" + text
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]struct{}, len(list)+len(items))
	for _, s := range list {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range items {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		list = append(list, s)
	}
	return list
}
