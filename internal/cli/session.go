package cli

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"repochat/internal/config"
	"repochat/internal/logging"
	"repochat/internal/provider"
	"repochat/internal/repository"
	"repochat/internal/vectorstore"
	"repochat/internal/vectorstore/backend"
)

// session holds what every command needs: the repository, its logger,
// the provider resolver and the vector store.
type session struct {
	repo     *repository.Repository
	log      zerolog.Logger
	resolver provider.Resolver
	store    vectorstore.Store
	logFile  io.Closer
}

// openSession loads configuration and opens the log and the store.
// console, when non-nil, also receives log output.
func openSession(opts *globalOptions, console io.Writer) (*session, error) {
	loader := config.NewLoader(opts.root, opts.configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	repo, err := repository.New(cfg, opts.root)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureDirs(); err != nil {
		return nil, err
	}

	log, logFile, err := logging.New(logging.Options{Dir: repo.LogDir(), Level: cfg.LogLevel, Console: console})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("root", repo.Path()).
		Str("config_file", loader.ConfigFileUsed()).
		Str("language", string(cfg.Language)).
		Str("indexing_provider", cfg.IndexingProvider).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Str("query_provider", cfg.QueryProvider).
		Str("vector_store", cfg.VectorStore.Kind).
		Msg("configuration loaded")

	resolver := provider.NewResolver(cfg)
	if err := resolver.Preflight(); err != nil {
		logFile.Close()
		return nil, err
	}

	store, err := backend.Open(cfg.VectorStore, repo.CacheDir())
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return &session{repo: repo, log: log, resolver: resolver, store: store, logFile: logFile}, nil
}

func (s *session) Close() error {
	return errors.Join(s.store.Close(), s.logFile.Close())
}
