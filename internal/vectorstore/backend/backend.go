// Package backend opens the vector store selected by configuration.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"repochat/internal/config"
	"repochat/internal/domain"
	"repochat/internal/vectorstore"
	"repochat/internal/vectorstore/chromem"
	"repochat/internal/vectorstore/memory"
	"repochat/internal/vectorstore/qdrant"
	"repochat/internal/vectorstore/sqlite"
)

// Open returns the configured store. Persistent stores live under cacheDir.
func Open(cfg config.VectorStoreConfig, cacheDir string) (vectorstore.Store, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "chromem":
		return chromem.NewPersistentStore(filepath.Join(cacheDir, "chromem"))
	case "sqlite":
		return sqlite.NewStore(filepath.Join(cacheDir, "vectors.db"))
	case "memory":
		return memory.NewStore(), nil
	case "qdrant":
		if cfg.Qdrant == nil || cfg.Qdrant.URL == "" {
			return nil, domain.ConfigError("vector_store.qdrant.url is required")
		}
		return qdrant.NewStore(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, cfg.Kind)
	}
}
