package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Language selects file extensions and chunking grammar.
type Language string

const (
	LanguageRust       Language = "rust"
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageRuby       Language = "ruby"
	LanguageC          Language = "c"
	LanguagePHP        Language = "php"
	LanguageMarkdown   Language = "markdown"
)

var languageExtensions = map[Language][]string{
	LanguageRust:       {".rs"},
	LanguagePython:     {".py"},
	LanguageTypeScript: {".ts", ".tsx"},
	LanguageJavaScript: {".js", ".jsx", ".mjs", ".cjs"},
	LanguageJava:       {".java"},
	LanguageRuby:       {".rb"},
	LanguageC:          {".c", ".h"},
	LanguagePHP:        {".php"},
	LanguageMarkdown:   {".md", ".markdown"},
}

// FileExtensions returns the extensions (with leading dot) indexed for the language.
func (l Language) FileExtensions() []string {
	exts := languageExtensions[Language(strings.ToLower(string(l)))]
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

// Valid reports whether the language is supported.
func (l Language) Valid() bool {
	_, ok := languageExtensions[Language(strings.ToLower(string(l)))]
	return ok
}

// ProviderConfig is one named backend block. Which fields matter depends on Kind.
type ProviderConfig struct {
	Kind           string `yaml:"kind" mapstructure:"kind"` // openai, ollama, gemini, extractive, hashing, static
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Model          string `yaml:"model,omitempty" mapstructure:"model"`
	EmbeddingModel string `yaml:"embedding_model,omitempty" mapstructure:"embedding_model"`
	TimeoutSecs    int    `yaml:"timeout_secs,omitempty" mapstructure:"timeout_secs"`
	Dimensions     int    `yaml:"dimensions,omitempty" mapstructure:"dimensions"`
	Response       string `yaml:"response,omitempty" mapstructure:"response"`
}

// IndexingConfig tunes the indexing pipeline.
type IndexingConfig struct {
	ChunkMin        int      `yaml:"chunk_min" mapstructure:"chunk_min"`
	ChunkMax        int      `yaml:"chunk_max" mapstructure:"chunk_max"`
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency"`
	MetadataFailure string   `yaml:"metadata_failure" mapstructure:"metadata_failure"` // skip or abort
	Ignore          []string `yaml:"ignore" mapstructure:"ignore"`
}

// QueryConfig tunes the query pipeline.
type QueryConfig struct {
	TopK               int `yaml:"top_k" mapstructure:"top_k"`
	Subquestions       int `yaml:"subquestions" mapstructure:"subquestions"`
	EmbeddingCacheSize int `yaml:"embedding_cache_size" mapstructure:"embedding_cache_size"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Kind   string        `yaml:"kind" mapstructure:"kind"` // chromem, sqlite, memory, qdrant
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" mapstructure:"qdrant"`
}

// Metadata failure policies.
const (
	MetadataFailureSkip  = "skip"
	MetadataFailureAbort = "abort"
)

// Config is the root application configuration.
// It is never mutated after Load returns.
type Config struct {
	Language          Language                  `yaml:"language" mapstructure:"language"`
	IndexingProvider  string                    `yaml:"indexing_provider" mapstructure:"indexing_provider"`
	EmbeddingProvider string                    `yaml:"embedding_provider" mapstructure:"embedding_provider"`
	QueryProvider     string                    `yaml:"query_provider" mapstructure:"query_provider"`
	Providers         map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Indexing          IndexingConfig            `yaml:"indexing" mapstructure:"indexing"`
	Query             QueryConfig               `yaml:"query" mapstructure:"query"`
	VectorStore       VectorStoreConfig         `yaml:"vector_store" mapstructure:"vector_store"`
	CacheDir          string                    `yaml:"cache_dir" mapstructure:"cache_dir"`
	LogDir            string                    `yaml:"log_dir" mapstructure:"log_dir"`
	LogLevel          string                    `yaml:"log_level" mapstructure:"log_level"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Language:          LanguageRust,
		IndexingProvider:  "openai",
		EmbeddingProvider: "openai",
		QueryProvider:     "openai",
		Providers: map[string]ProviderConfig{
			"openai": {
				Kind:           "openai",
				BaseURL:        "https://api.openai.com/v1",
				APIKeyEnv:      "OPENAI_API_KEY",
				Model:          "gpt-4o-mini",
				EmbeddingModel: "text-embedding-3-small",
				TimeoutSecs:    60,
			},
			"local": {
				Kind: "extractive",
			},
			"hashing": {
				Kind:       "hashing",
				Dimensions: 512,
			},
		},
		Indexing: IndexingConfig{
			ChunkMin:        100,
			ChunkMax:        2048,
			BatchSize:       32,
			Concurrency:     4,
			MetadataFailure: MetadataFailureSkip,
			Ignore: []string{
				"node_modules/**",
				"vendor/**",
				"target/**",
				"dist/**",
				"build/**",
				"__pycache__/**",
			},
		},
		Query: QueryConfig{
			TopK:               5,
			Subquestions:       3,
			EmbeddingCacheSize: 256,
		},
		VectorStore: VectorStoreConfig{Kind: "chromem"},
		CacheDir:    filepath.Join(".repochat", "cache"),
		LogDir:      filepath.Join(".repochat", "logs"),
		LogLevel:    "info",
	}
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
