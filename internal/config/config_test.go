package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

// Test Plan for Config:
// - Load() returns defaults when no config file exists
// - Load() reads repochat.yaml from the repository root
// - Load() lets REPOCHAT_* environment variables override file values
// - Load() fails with a configuration error for an explicit missing file
// - Validate() rejects selectors naming unconfigured providers
// - Validate() reports every problem at once
// - Save() round-trips through Load()
// - Language.FileExtensions() maps languages to extensions

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Language, cfg.Language)
	assert.Equal(t, d.Indexing.ChunkMin, cfg.Indexing.ChunkMin)
	assert.Equal(t, d.Indexing.ChunkMax, cfg.Indexing.ChunkMax)
	assert.Equal(t, d.Indexing.BatchSize, cfg.Indexing.BatchSize)
	assert.Equal(t, d.Query.TopK, cfg.Query.TopK)
	assert.Equal(t, "chromem", cfg.VectorStore.Kind)
	assert.Equal(t, "openai", cfg.Providers["openai"].Kind)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Providers["openai"].APIKeyEnv)
}

func TestLoad_FromRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	content := `
language: python
indexing_provider: stub
embedding_provider: stub
query_provider: stub
providers:
  stub:
    kind: static
    response: "fixed"
    dimensions: 4
indexing:
  chunk_min: 10
  chunk_max: 500
  metadata_failure: abort
vector_store:
  kind: memory
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	loader := NewLoader(root, "")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, FileName), loader.ConfigFileUsed())
	assert.Equal(t, LanguagePython, cfg.Language)
	assert.Equal(t, "stub", cfg.QueryProvider)
	assert.Equal(t, "static", cfg.Providers["stub"].Kind)
	assert.Equal(t, "fixed", cfg.Providers["stub"].Response)
	assert.Equal(t, 4, cfg.Providers["stub"].Dimensions)
	assert.Equal(t, 10, cfg.Indexing.ChunkMin)
	assert.Equal(t, 500, cfg.Indexing.ChunkMax)
	assert.Equal(t, MetadataFailureAbort, cfg.Indexing.MetadataFailure)
	assert.Equal(t, "memory", cfg.VectorStore.Kind)
	// untouched keys keep their defaults
	assert.Equal(t, 32, cfg.Indexing.BatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("language: rust\n"), 0o644))

	t.Setenv("REPOCHAT_LANGUAGE", "ruby")
	t.Setenv("REPOCHAT_VECTOR_STORE_KIND", "sqlite")
	t.Setenv("REPOCHAT_QUERY_TOP_K", "9")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, LanguageRuby, cfg.Language)
	assert.Equal(t, "sqlite", cfg.VectorStore.Kind)
	assert.Equal(t, 9, cfg.Query.TopK)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("language: [unterminated\n"), 0o644))

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.Classify(err))
}

func TestValidate_UnconfiguredSelector(t *testing.T) {
	cfg := Default()
	cfg.QueryProvider = "missing"

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnconfiguredProvider)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Language = "cobol"
	cfg.EmbeddingProvider = ""
	cfg.Indexing.ChunkMin = 300
	cfg.Indexing.ChunkMax = 200
	cfg.Indexing.MetadataFailure = "retry"
	cfg.VectorStore.Kind = "qdrant"

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLanguage)
	assert.ErrorIs(t, err, ErrMissingSelector)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
	assert.ErrorIs(t, err, ErrInvalidIndexing)
	assert.ErrorIs(t, err, ErrInvalidStore)
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()

	cfg := Default()
	cfg.Language = LanguageTypeScript
	cfg.Query.Subquestions = 0
	path := filepath.Join(root, ".repochat", FileName)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, LanguageTypeScript, loaded.Language)
	assert.Equal(t, 0, loaded.Query.Subquestions)
	assert.Equal(t, cfg.Indexing.Ignore, loaded.Indexing.Ignore)
}

func TestLanguage_FileExtensions(t *testing.T) {
	tests := []struct {
		lang Language
		want []string
	}{
		{LanguageRust, []string{".rs"}},
		{LanguagePython, []string{".py"}},
		{LanguageC, []string{".c", ".h"}},
		{"RUST", []string{".rs"}},
		{"cobol", []string{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lang.FileExtensions())
		})
	}
}
