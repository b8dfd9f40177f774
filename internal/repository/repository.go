// Package repository holds the immutable context a session operates on:
// the loaded configuration and the absolute repository root.
package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"repochat/internal/config"
	"repochat/internal/domain"
)

// Repository is read-only after construction and safe to share between
// goroutines.
type Repository struct {
	config *config.Config
	path   string
}

// New resolves root to an absolute, cleaned path and binds it to cfg.
func New(cfg *config.Config, root string) (*Repository, error) {
	if cfg == nil {
		return nil, domain.ConfigError("nil configuration")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.ConfigError("resolve repository root %q: %v", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, domain.ConfigError("repository root %q: %v", abs, err)
	}
	if !info.IsDir() {
		return nil, domain.ConfigError("repository root %q is not a directory", abs)
	}
	return &Repository{config: cfg, path: filepath.Clean(abs)}, nil
}

// Path returns the absolute repository root.
func (r *Repository) Path() string { return r.path }

// Config returns the loaded configuration. Callers must not modify it.
func (r *Repository) Config() *config.Config { return r.config }

// CacheDir returns the absolute cache directory.
func (r *Repository) CacheDir() string { return r.resolve(r.config.CacheDir) }

// LogDir returns the absolute log directory.
func (r *Repository) LogDir() string { return r.resolve(r.config.LogDir) }

// EnsureDirs creates the cache and log directories.
func (r *Repository) EnsureDirs() error {
	for _, dir := range []string{r.CacheDir(), r.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %w", domain.ErrIO, dir, err)
		}
	}
	return nil
}

func (r *Repository) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.path, p)
}
