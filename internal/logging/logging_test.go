package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closer, err := New(Options{Dir: dir, Level: "debug"})
	require.NoError(t, err)

	runLogger := ForRun(logger, "run-1", "indexing")
	runLogger.Debug().Int("files", 2).Msg("loaded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "indexing", entry["operation"])
	assert.Equal(t, float64(2), entry["files"])
	assert.Equal(t, "loaded", entry["message"])
}

func TestNew_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closer, err := New(Options{Dir: dir, Level: "warn", Console: &console})
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
	assert.Contains(t, console.String(), "shown")
	assert.False(t, strings.Contains(console.String(), "hidden"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		" error ": zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
