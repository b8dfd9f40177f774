package config

import (
	"errors"
	"fmt"
	"strings"

	"repochat/internal/domain"
)

var (
	// ErrInvalidLanguage indicates an unsupported repository language.
	ErrInvalidLanguage = fmt.Errorf("%w: invalid language", domain.ErrConfiguration)

	// ErrMissingSelector indicates an empty provider selector.
	ErrMissingSelector = fmt.Errorf("%w: missing provider selector", domain.ErrConfiguration)

	// ErrUnconfiguredProvider indicates a selector naming no providers entry.
	ErrUnconfiguredProvider = fmt.Errorf("%w: unconfigured provider", domain.ErrConfiguration)

	// ErrEmptyKind indicates a providers entry without a kind.
	ErrEmptyKind = fmt.Errorf("%w: provider kind is required", domain.ErrConfiguration)

	// ErrInvalidChunkSize indicates invalid chunk bounds.
	ErrInvalidChunkSize = fmt.Errorf("%w: invalid chunk size", domain.ErrConfiguration)

	// ErrInvalidIndexing indicates invalid batch, concurrency or policy settings.
	ErrInvalidIndexing = fmt.Errorf("%w: invalid indexing settings", domain.ErrConfiguration)

	// ErrInvalidQuery indicates invalid query settings.
	ErrInvalidQuery = fmt.Errorf("%w: invalid query settings", domain.ErrConfiguration)

	// ErrInvalidStore indicates an unsupported or incomplete vector store.
	ErrInvalidStore = fmt.Errorf("%w: invalid vector store", domain.ErrConfiguration)
)

// Validate checks that the configuration is complete and consistent.
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Language.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLanguage, cfg.Language))
	}

	errs = append(errs, validateSelectors(cfg)...)
	errs = append(errs, validateIndexing(&cfg.Indexing)...)

	if cfg.Query.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidQuery, cfg.Query.TopK))
	}
	if cfg.Query.Subquestions < 0 {
		errs = append(errs, fmt.Errorf("%w: subquestions must not be negative, got %d", ErrInvalidQuery, cfg.Query.Subquestions))
	}
	if cfg.Query.EmbeddingCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: embedding_cache_size must be positive, got %d", ErrInvalidQuery, cfg.Query.EmbeddingCacheSize))
	}

	if err := validateStore(&cfg.VectorStore); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.CacheDir) == "" {
		errs = append(errs, domain.ConfigError("cache_dir is required"))
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		errs = append(errs, domain.ConfigError("log_dir is required"))
	}

	return errors.Join(errs...)
}

func validateSelectors(cfg *Config) []error {
	var errs []error
	selectors := []struct{ key, name string }{
		{"indexing_provider", cfg.IndexingProvider},
		{"embedding_provider", cfg.EmbeddingProvider},
		{"query_provider", cfg.QueryProvider},
	}
	for _, s := range selectors {
		if strings.TrimSpace(s.name) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSelector, s.key))
			continue
		}
		p, ok := cfg.Providers[s.name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s names %q", ErrUnconfiguredProvider, s.key, s.name))
			continue
		}
		if strings.TrimSpace(p.Kind) == "" {
			errs = append(errs, fmt.Errorf("%w: providers.%s", ErrEmptyKind, s.name))
		}
	}
	return errs
}

func validateIndexing(cfg *IndexingConfig) []error {
	var errs []error
	if cfg.ChunkMin < 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_min must not be negative, got %d", ErrInvalidChunkSize, cfg.ChunkMin))
	}
	if cfg.ChunkMax <= 0 || cfg.ChunkMax < cfg.ChunkMin {
		errs = append(errs, fmt.Errorf("%w: chunk_max (%d) must be positive and >= chunk_min (%d)", ErrInvalidChunkSize, cfg.ChunkMax, cfg.ChunkMin))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidIndexing, cfg.BatchSize))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidIndexing, cfg.Concurrency))
	}
	switch cfg.MetadataFailure {
	case MetadataFailureSkip, MetadataFailureAbort:
	default:
		errs = append(errs, fmt.Errorf("%w: metadata_failure must be %q or %q, got %q",
			ErrInvalidIndexing, MetadataFailureSkip, MetadataFailureAbort, cfg.MetadataFailure))
	}
	return errs
}

func validateStore(cfg *VectorStoreConfig) error {
	switch strings.ToLower(cfg.Kind) {
	case "chromem", "sqlite", "memory":
		return nil
	case "qdrant":
		if cfg.Qdrant == nil || strings.TrimSpace(cfg.Qdrant.URL) == "" {
			return fmt.Errorf("%w: qdrant requires vector_store.qdrant.url", ErrInvalidStore)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind must be chromem, sqlite, memory or qdrant, got %q", ErrInvalidStore, cfg.Kind)
	}
}
