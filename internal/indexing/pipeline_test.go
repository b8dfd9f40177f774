package indexing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/config"
	"repochat/internal/domain"
	"repochat/internal/provider"
	"repochat/internal/repository"
	"repochat/internal/vectorstore"
	"repochat/internal/vectorstore/memory"
)

// Test Plan for Pipeline:
// - a two-file repository with a fixed completion and fixed embedding
//   stores exactly two chunks whose metadata is the fixed completion
// - an always-failing metadata provider fails the run and stores nothing
// - the skip policy drops failing chunks and keeps the rest, including a
//   trailing batch in which every chunk failed
// - a skip-policy run gives up once the leading chunks all failed
// - the abort policy and unreachable providers fail the run on first failure
// - re-indexing upserts by chunk ID, so the record count is unchanged
// - a cancelled context stops the run before the next stage or batch
// - a changed embedding provider rebuilds the index
// - the manifest records the embedding identity after the first batch

const fixedMetadata = "Q1: What does this do?\nA1: Something fixed."

func newRepo(t *testing.T, files map[string]string, mutate func(*config.Config)) *repository.Repository {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Language = config.LanguagePython
	cfg.IndexingProvider = "stub"
	cfg.EmbeddingProvider = "stub"
	cfg.QueryProvider = "stub"
	cfg.Providers["stub"] = config.ProviderConfig{Kind: "static", Response: fixedMetadata, Dimensions: 4}
	cfg.VectorStore.Kind = "memory"
	cfg.Indexing.ChunkMin = 0
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Validate(cfg))

	repo, err := repository.New(cfg, root)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureDirs())
	return repo
}

var twoFiles = map[string]string{
	"a.py":     "def alpha():\n    return 1\n",
	"pkg/b.py": "def beta():\n    return 2\n",
}

// stubResolver hands out fixed completers and embedders.
type stubResolver struct {
	completer domain.Completer
	embedder  domain.Embedder
	model     string
}

func (s stubResolver) ResolveCompletion(selector string) (*provider.Handle, error) {
	return provider.NewCompletionHandle(selector, provider.KindStatic, "stub", s.completer), nil
}

func (s stubResolver) ResolveEmbedding(selector string) (*provider.Handle, error) {
	model := s.model
	if model == "" {
		model = "4"
	}
	return provider.NewEmbeddingHandle(selector, provider.KindStatic, model, s.embedder), nil
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func allChunks(t *testing.T, store vectorstore.Store) []domain.SearchResult {
	t.Helper()
	results, err := store.NearestNeighbors(context.Background(), []float32{1, 1, 1, 1}, 100)
	require.NoError(t, err)
	return results
}

func TestRun_FixedProvidersStoreOneChunkPerFile(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	p := NewPipeline(provider.NewResolver(repo.Config()), store, zerolog.Nop())

	var stages []Stage
	summary, err := p.Run(context.Background(), repo, Options{}, func(pr Progress) {
		stages = append(stages, pr.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, Summary{Files: 2, Chunks: 2, Stored: 2}, summary)
	results := allChunks(t, store)
	require.Len(t, results, 2)
	paths := []string{results[0].Chunk.Path, results[1].Chunk.Path}
	assert.ElementsMatch(t, []string{"a.py", "pkg/b.py"}, paths)
	for _, r := range results {
		assert.Equal(t, fixedMetadata, r.Chunk.Metadata[domain.MetaQA])
	}

	assert.Equal(t, StageLoading, stages[0])
	assert.Equal(t, StageDone, stages[len(stages)-1])
	assert.Contains(t, stages, StageChunking)
	assert.Contains(t, stages, StageIndexing)

	m, err := vectorstore.ReadManifest(repo.CacheDir())
	require.NoError(t, err)
	assert.Equal(t, "static/4", m.EmbeddingIdentity)
	assert.Equal(t, 4, m.Dimension)
	assert.Equal(t, "memory", m.Store)
}

func TestRun_AlwaysFailingMetadataStoresNothing(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	failing := completerFunc(func(context.Context, string) (string, error) {
		return "", domain.StatusError("stub", 500, "boom")
	})
	p := NewPipeline(stubResolver{completer: failing, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindProvider, domain.Classify(err))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = vectorstore.ReadManifest(repo.CacheDir())
	assert.ErrorIs(t, err, vectorstore.ErrNoIndex)
}

func TestRun_SkipPolicyDropsFailingChunks(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	flaky := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "beta") {
			return "", domain.StatusError("stub", 500, "boom")
		}
		return "ok", nil
	})
	p := NewPipeline(stubResolver{completer: flaky, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	summary, err := p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Stored)

	results := allChunks(t, store)
	require.Len(t, results, 1)
	assert.Equal(t, "a.py", results[0].Chunk.Path)
}

func TestRun_SkipPolicyToleratesFailedTrailingBatch(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"alpha.py": "def alpha():\n    return 1\n",
		"beta.py":  "def beta():\n    return 2\n",
		"gamma.py": "def gamma():\n    return 3\n",
	}, func(cfg *config.Config) {
		cfg.Indexing.BatchSize = 2
	})
	store := memory.NewStore()
	flaky := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "gamma") {
			return "", domain.StatusError("stub", 400, "prompt too long")
		}
		return "ok", nil
	})
	p := NewPipeline(stubResolver{completer: flaky, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	summary, err := p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 3, Chunks: 3, Skipped: 1, Stored: 2}, summary)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_SkipPolicyGivesUpAfterLeadingFailures(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < leadingFailureLimit+8; i++ {
		files[fmt.Sprintf("m%02d.py", i)] = fmt.Sprintf("def f%d():\n    return %d\n", i, i)
	}
	repo := newRepo(t, files, func(cfg *config.Config) {
		cfg.Indexing.BatchSize = 4
	})
	store := memory.NewStore()
	var calls atomic.Int32
	failing := completerFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", domain.StatusError("stub", 500, "boom")
	})
	p := NewPipeline(stubResolver{completer: failing, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindProvider, domain.Classify(err))
	assert.Equal(t, int32(leadingFailureLimit), calls.Load())
}

func TestRun_AbortPolicyFailsOnFirstFailure(t *testing.T) {
	repo := newRepo(t, twoFiles, func(cfg *config.Config) {
		cfg.Indexing.MetadataFailure = config.MetadataFailureAbort
	})
	store := memory.NewStore()
	flaky := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "beta") {
			return "", domain.StatusError("stub", 500, "boom")
		}
		return "ok", nil
	})
	p := NewPipeline(stubResolver{completer: flaky, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pkg/b.py")

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestRun_UnreachableProviderAborts(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	flaky := completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "beta") {
			return "", domain.StatusError("stub", 401, "bad key")
		}
		return "ok", nil
	})
	p := NewPipeline(stubResolver{completer: flaky, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnreachable)
}

func TestRun_ReindexIsIdempotent(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	p := NewPipeline(provider.NewResolver(repo.Config()), store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)
	first := allChunks(t, store)

	_, err = p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)
	second := allChunks(t, store)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, second[i].Chunk.ID)
	}
}

func TestRun_ResetDropsStaleRecords(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	p := NewPipeline(provider.NewResolver(repo.Config()), store, zerolog.Nop())

	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(repo.Path(), "pkg", "b.py")))

	_, err = p.Run(context.Background(), repo, Options{Reset: true}, nil)
	require.NoError(t, err)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	p := NewPipeline(provider.NewResolver(repo.Config()), store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, repo, Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.KindCancelled, domain.Classify(err))
	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestRun_CancelStopsBeforeNextBatch(t *testing.T) {
	repo := newRepo(t, twoFiles, func(cfg *config.Config) {
		cfg.Indexing.BatchSize = 1
		cfg.Indexing.Concurrency = 1
	})
	store := memory.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	cancelling := completerFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		cancel()
		return "ok", nil
	})
	p := NewPipeline(stubResolver{completer: cancelling, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())

	_, err := p.Run(ctx, repo, Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestRun_EmbeddingChangeRebuildsIndex(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	store := memory.NewStore()
	fixed := completerFunc(func(context.Context, string) (string, error) { return "ok", nil })

	p := NewPipeline(stubResolver{completer: fixed, embedder: provider.NewStaticEmbedder(4)}, store, zerolog.Nop())
	_, err := p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)

	p = NewPipeline(stubResolver{completer: fixed, embedder: provider.NewStaticEmbedder(6), model: "6"}, store, zerolog.Nop())
	_, err = p.Run(context.Background(), repo, Options{}, nil)
	require.NoError(t, err)

	m, err := vectorstore.ReadManifest(repo.CacheDir())
	require.NoError(t, err)
	assert.Equal(t, "static/6", m.EmbeddingIdentity)
	assert.Equal(t, 6, m.Dimension)
	n, _ := store.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestRun_UnknownProviderFailsWithoutTouchingStore(t *testing.T) {
	repo := newRepo(t, twoFiles, nil)
	cfg := *repo.Config()
	cfg.IndexingProvider = "nope"
	repo2, err := repository.New(&cfg, repo.Path())
	require.NoError(t, err)

	store := memory.NewStore()
	p := NewPipeline(provider.NewResolver(&cfg), store, zerolog.Nop())
	_, err = p.Run(context.Background(), repo2, Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrUnknownProvider))
	assert.Equal(t, domain.KindConfiguration, domain.Classify(err))
}

func TestMetadataPrompt(t *testing.T) {
	c := domain.Chunk{Path: "a.py", Text: "def alpha(): pass", Metadata: map[string]string{domain.MetaLanguage: "python"}}
	prompt := MetadataPrompt(c)
	assert.Contains(t, prompt, "File: a.py")
	assert.Contains(t, prompt, "Language: python")
	assert.Contains(t, prompt, "def alpha(): pass")
}
