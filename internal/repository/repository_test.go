package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/config"
	"repochat/internal/domain"
)

func TestNew_ResolvesAbsolutePath(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a")
	require.NoError(t, os.Mkdir(sub, 0o755))

	repo, err := New(config.Default(), filepath.Join(sub, "..", "a"))
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(repo.Path()))
	assert.Equal(t, sub, repo.Path())
	assert.Equal(t, filepath.Join(sub, ".repochat", "cache"), repo.CacheDir())
	assert.Equal(t, filepath.Join(sub, ".repochat", "logs"), repo.LogDir())
}

func TestNew_RejectsMissingOrFileRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(config.Default(), filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = New(config.Default(), file)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEnsureDirs(t *testing.T) {
	cfg := config.Default()
	abs := filepath.Join(t.TempDir(), "elsewhere", "cache")
	cfg.CacheDir = abs

	repo, err := New(cfg, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.EnsureDirs())

	assert.DirExists(t, abs)
	assert.DirExists(t, repo.LogDir())
}
