package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"repochat/internal/domain"
)

// FileName is the base name of the config file searched for when no
// explicit path is given.
const FileName = "repochat.yaml"

// Loader reads configuration with the following priority (highest to lowest):
//  1. Environment variables (REPOCHAT_*)
//  2. Config file (explicit path, or repochat.yaml in the repo root,
//     <root>/.repochat or ~/.config/repochat)
//  3. Default values
type Loader struct {
	rootDir    string
	configFile string
	used       string
}

// NewLoader creates a loader for the given repository root. configFile may be
// empty, in which case the default search paths are used.
func NewLoader(rootDir, configFile string) *Loader {
	return &Loader{rootDir: rootDir, configFile: configFile}
}

// Load loads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
		v.AddConfigPath(filepath.Join(l.rootDir, ".repochat"))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "repochat"))
		}
	}

	v.SetEnvPrefix("REPOCHAT")
	v.AutomaticEnv()
	// REPOCHAT_VECTOR_STORE_KIND -> vector_store.kind
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"language",
		"indexing_provider",
		"embedding_provider",
		"query_provider",
		"indexing.batch_size",
		"indexing.concurrency",
		"indexing.metadata_failure",
		"query.top_k",
		"query.subquestions",
		"vector_store.kind",
		"cache_dir",
		"log_dir",
		"log_level",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %w", domain.ErrConfiguration, err)
		}
	}
	l.used = v.ConfigFileUsed()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", domain.ErrConfiguration, err)
	}
	cfg.Language = Language(strings.ToLower(string(cfg.Language)))

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the file the last Load read, or "" when only
// defaults and environment were used.
func (l *Loader) ConfigFileUsed() string {
	return l.used
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("language", string(d.Language))
	v.SetDefault("indexing_provider", d.IndexingProvider)
	v.SetDefault("embedding_provider", d.EmbeddingProvider)
	v.SetDefault("query_provider", d.QueryProvider)

	providers := make(map[string]any, len(d.Providers))
	for name, p := range d.Providers {
		providers[name] = map[string]any{
			"kind":            p.Kind,
			"base_url":        p.BaseURL,
			"api_key_env":     p.APIKeyEnv,
			"model":           p.Model,
			"embedding_model": p.EmbeddingModel,
			"timeout_secs":    p.TimeoutSecs,
			"dimensions":      p.Dimensions,
			"response":        p.Response,
		}
	}
	v.SetDefault("providers", providers)

	v.SetDefault("indexing.chunk_min", d.Indexing.ChunkMin)
	v.SetDefault("indexing.chunk_max", d.Indexing.ChunkMax)
	v.SetDefault("indexing.batch_size", d.Indexing.BatchSize)
	v.SetDefault("indexing.concurrency", d.Indexing.Concurrency)
	v.SetDefault("indexing.metadata_failure", d.Indexing.MetadataFailure)
	v.SetDefault("indexing.ignore", d.Indexing.Ignore)

	v.SetDefault("query.top_k", d.Query.TopK)
	v.SetDefault("query.subquestions", d.Query.Subquestions)
	v.SetDefault("query.embedding_cache_size", d.Query.EmbeddingCacheSize)

	v.SetDefault("vector_store.kind", d.VectorStore.Kind)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_level", d.LogLevel)
}

// Load is a convenience wrapper around NewLoader(rootDir, configFile).Load().
func Load(rootDir, configFile string) (*Config, error) {
	return NewLoader(rootDir, configFile).Load()
}
