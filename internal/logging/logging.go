// Package logging configures zerolog for the application.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"repochat/internal/domain"
)

// FileName is the log file written inside the log directory.
const FileName = "repochat.log"

// Options configures New.
type Options struct {
	Dir   string
	Level string
	// Console, when set, also receives human-readable output. The TUI
	// leaves it nil because it owns the terminal.
	Console io.Writer
}

// New opens <Dir>/repochat.log for JSON lines and returns a logger writing
// to it. The returned closer releases the file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("%w: create log dir: %w", domain.ErrIO, err)
	}
	path := filepath.Join(opts.Dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("%w: open log file: %w", domain.ErrIO, err)
	}

	var w io.Writer = f
	if opts.Console != nil {
		console := zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.RFC3339}
		w = io.MultiWriter(console, f)
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, f, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel
	}
	lv, err := zerolog.ParseLevel(s)
	if err != nil || lv == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lv
}

// ForRun returns a child logger tagged with a run ID and operation.
func ForRun(base zerolog.Logger, runID, operation string) zerolog.Logger {
	return base.With().Str("run_id", runID).Str("operation", operation).Logger()
}
