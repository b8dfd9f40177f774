// Package loader discovers and reads the repository files to index.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"repochat/internal/domain"
)

// MaxFileSize bounds the files read; larger files are skipped.
const MaxFileSize = 1 << 20

// compiledPattern holds both the pattern string and compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
	// root matches files in the repository root for "**/" patterns
	root glob.Glob
}

// Loader walks a repository root.
type Loader struct {
	root       string
	language   string
	extensions map[string]struct{}
	ignore     []compiledPattern
	skipDirs   []string
	log        zerolog.Logger
}

// Options configures a Loader.
type Options struct {
	Root       string
	Language   string
	Extensions []string
	Ignore     []string
	// SkipDirs are absolute directories never descended into, such as the
	// cache and log directories.
	SkipDirs []string
	Logger   zerolog.Logger
}

// New compiles the ignore patterns.
func New(opts Options) (*Loader, error) {
	l := &Loader{
		root:       opts.Root,
		language:   opts.Language,
		extensions: make(map[string]struct{}, len(opts.Extensions)),
		skipDirs:   opts.SkipDirs,
		log:        opts.Logger,
	}
	for _, ext := range opts.Extensions {
		l.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, domain.ConfigError("invalid ignore pattern %q: %v", pattern, err)
		}
		cp := compiledPattern{pattern: pattern, glob: g}
		if simplified, ok := strings.CutPrefix(pattern, "**/"); ok {
			if rg, err := glob.Compile(simplified, '/'); err == nil {
				cp.root = rg
			}
		}
		l.ignore = append(l.ignore, cp)
	}
	return l, nil
}

// Discover returns the relative, slash-separated paths of every file to
// index, sorted.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("%w: repository root: %w", domain.ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: repository root %s is not a directory", domain.ErrIO, l.root)
	}

	var files []string
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == l.root {
				return err
			}
			l.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == l.root {
				return nil
			}
			if d.Name() == ".git" || l.isSkipDir(path) || l.ignored(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := l.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if l.ignored(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: walk %s: %w", domain.ErrIO, l.root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Load discovers and reads every file. Unreadable, oversized and binary
// files are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]domain.Document, error) {
	files, err := l.Discover(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok := l.read(rel)
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (l *Loader) read(rel string) (domain.Document, bool) {
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		l.log.Warn().Err(err).Str("path", rel).Msg("skipping unreadable file")
		return domain.Document{}, false
	}
	if info.Size() > MaxFileSize {
		l.log.Info().Str("path", rel).Int64("size", info.Size()).Msg("skipping large file")
		return domain.Document{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		l.log.Warn().Err(err).Str("path", rel).Msg("skipping unreadable file")
		return domain.Document{}, false
	}
	head := data[:min(len(data), 8000)]
	if bytes.IndexByte(head, 0) >= 0 {
		l.log.Info().Str("path", rel).Msg("skipping binary file")
		return domain.Document{}, false
	}
	return domain.Document{ID: rel, Path: rel, Language: l.language, Content: string(data)}, true
}

func (l *Loader) isSkipDir(path string) bool {
	for _, dir := range l.skipDirs {
		if dir != "" && filepath.Clean(dir) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

func (l *Loader) ignored(rel string) bool {
	for _, cp := range l.ignore {
		if cp.glob.Match(rel) {
			return true
		}
		if cp.root != nil && cp.root.Match(rel) {
			return true
		}
	}
	return false
}
