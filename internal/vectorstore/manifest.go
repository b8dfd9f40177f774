package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"repochat/internal/domain"
)

// ManifestFile is the manifest's file name inside the cache directory.
const ManifestFile = "index.yaml"

// ErrNoIndex is returned when no manifest exists yet.
var ErrNoIndex = fmt.Errorf("%w: repository has not been indexed", domain.ErrConfiguration)

// Manifest records the embedding space an index was built with.
type Manifest struct {
	EmbeddingIdentity string    `yaml:"embedding_identity"`
	Dimension         int       `yaml:"dimension"`
	Store             string    `yaml:"store"`
	Language          string    `yaml:"language"`
	UpdatedAt         time.Time `yaml:"updated_at"`
}

// ReadManifest loads the manifest from dir. A missing file is ErrNoIndex.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIndex
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", domain.ErrIO, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", domain.ErrStorage, err)
	}
	return &m, nil
}

// WriteManifest stores m in dir, replacing any previous manifest atomically.
func WriteManifest(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ManifestFile+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ManifestFile)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}

// RemoveManifest deletes the manifest if present.
func RemoveManifest(dir string) error {
	err := os.Remove(filepath.Join(dir, ManifestFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}

// Compatible reports an error when vectors of the given identity and
// dimension cannot be compared with this index.
func (m *Manifest) Compatible(identity string, dimension int) error {
	if m.EmbeddingIdentity != identity {
		return domain.ConfigError("index was built with embeddings %q but embedding_provider resolves to %q; re-index the repository",
			m.EmbeddingIdentity, identity)
	}
	if dimension > 0 && m.Dimension != dimension {
		return domain.ConfigError("index dimension %d does not match query embedding dimension %d; re-index the repository",
			m.Dimension, dimension)
	}
	return nil
}
