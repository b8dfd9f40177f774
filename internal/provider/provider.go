// Package provider resolves the provider selectors of a configuration into
// capability handles backed by concrete model adapters.
package provider

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"repochat/internal/config"
	"repochat/internal/domain"
	embedhashing "repochat/internal/embedding/hashing"
	embedollama "repochat/internal/embedding/ollama"
	embedopenai "repochat/internal/embedding/openai"
	"repochat/internal/llm/extractive"
	llmollama "repochat/internal/llm/ollama"
	llmopenai "repochat/internal/llm/openai"
)

var (
	// ErrUnknownProvider is returned for a selector with no providers entry.
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", domain.ErrConfiguration)
	// ErrUnknownBackend is returned for a kind outside the supported set.
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend kind", domain.ErrConfiguration)
	// ErrBackendUnavailable is returned for a kind compiled out of this binary.
	ErrBackendUnavailable = fmt.Errorf("%w: backend not available in this build", domain.ErrConfiguration)
	// ErrCapabilityUnsupported is returned when a backend lacks the requested capability.
	ErrCapabilityUnsupported = fmt.Errorf("%w: capability not supported by backend", domain.ErrConfiguration)
	// ErrInvalidBackendParams is returned for missing or malformed backend parameters.
	ErrInvalidBackendParams = fmt.Errorf("%w: invalid backend parameters", domain.ErrConfiguration)
)

// Kind is a backend kind.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindOllama     Kind = "ollama"
	KindGemini     Kind = "gemini"
	KindExtractive Kind = "extractive"
	KindHashing    Kind = "hashing"
	KindStatic     Kind = "static"
)

// Kinds lists every backend kind, including ones compiled out.
var Kinds = []Kind{KindOpenAI, KindOllama, KindGemini, KindExtractive, KindHashing, KindStatic}

func parseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Capability is what a handle can do.
type Capability int

const (
	CapabilityCompletion Capability = iota + 1
	CapabilityEmbedding
)

func (c Capability) String() string {
	switch c {
	case CapabilityCompletion:
		return "completion"
	case CapabilityEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// Handle is a resolved provider. It is created per run and not shared
// across runs.
type Handle struct {
	Name       string
	Kind       Kind
	Capability Capability
	Completer  domain.Completer
	Embedder   domain.Embedder

	model string
}

// NewCompletionHandle wraps an existing completer.
func NewCompletionHandle(name string, kind Kind, model string, c domain.Completer) *Handle {
	return &Handle{Name: name, Kind: kind, Capability: CapabilityCompletion, Completer: c, model: model}
}

// NewEmbeddingHandle wraps an existing embedder.
func NewEmbeddingHandle(name string, kind Kind, model string, e domain.Embedder) *Handle {
	return &Handle{Name: name, Kind: kind, Capability: CapabilityEmbedding, Embedder: e, model: model}
}

// Identity names the embedding space, as kind/model. Two handles with the
// same identity produce comparable vectors.
func (h *Handle) Identity() string {
	return string(h.Kind) + "/" + h.model
}

// Resolver turns selectors into handles. It performs no network calls and
// holds no state beyond the configuration.
type Resolver struct {
	cfg    *config.Config
	getenv func(string) string
}

// NewResolver creates a resolver over cfg.
func NewResolver(cfg *config.Config) Resolver {
	return Resolver{cfg: cfg, getenv: os.Getenv}
}

// WithEnv returns a copy of the resolver reading variables through getenv.
func (r Resolver) WithEnv(getenv func(string) string) Resolver {
	r.getenv = getenv
	return r
}

// Preflight resolves every configured selector so configuration problems
// surface at startup.
func (r Resolver) Preflight() error {
	if _, err := r.ResolveCompletion(r.cfg.IndexingProvider); err != nil {
		return fmt.Errorf("indexing_provider: %w", err)
	}
	if _, err := r.ResolveEmbedding(r.cfg.EmbeddingProvider); err != nil {
		return fmt.Errorf("embedding_provider: %w", err)
	}
	if _, err := r.ResolveCompletion(r.cfg.QueryProvider); err != nil {
		return fmt.Errorf("query_provider: %w", err)
	}
	return nil
}

func (r Resolver) lookup(selector string) (config.ProviderConfig, Kind, error) {
	pc, ok := r.cfg.Providers[selector]
	if !ok {
		return pc, "", fmt.Errorf("%w: %q", ErrUnknownProvider, selector)
	}
	kind, ok := parseKind(pc.Kind)
	if !ok {
		return pc, "", fmt.Errorf("%w: providers.%s.kind %q", ErrUnknownBackend, selector, pc.Kind)
	}
	return pc, kind, nil
}

// ResolveCompletion returns a completion handle for selector.
func (r Resolver) ResolveCompletion(selector string) (*Handle, error) {
	pc, kind, err := r.lookup(selector)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOpenAI:
		key, err := r.apiKey(selector, pc, pc.BaseURL == "" || strings.Contains(pc.BaseURL, "api.openai.com"))
		if err != nil {
			return nil, err
		}
		c := llmopenai.NewClient(llmopenai.Config{
			BaseURL:    pc.BaseURL,
			APIKey:     key,
			Model:      pc.Model,
			Timeout:    timeout(pc),
			MaxRetries: maxRetries,
		})
		return NewCompletionHandle(selector, kind, orDefault(pc.Model, "gpt-4o-mini"), c), nil
	case KindOllama:
		c := llmollama.NewClient(llmollama.Config{
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    timeout(pc),
			MaxRetries: maxRetries,
		})
		return NewCompletionHandle(selector, kind, orDefault(pc.Model, "llama3.2"), c), nil
	case KindGemini:
		if !geminiAvailable {
			return nil, geminiUnavailable(selector)
		}
		key, err := r.geminiKey(selector, pc)
		if err != nil {
			return nil, err
		}
		c, err := newGeminiCompleter(pc, key)
		if err != nil {
			return nil, err
		}
		return NewCompletionHandle(selector, kind, orDefault(pc.Model, "gemini-2.0-flash"), c), nil
	case KindExtractive:
		return NewCompletionHandle(selector, kind, "extractive", extractive.NewCompleter(0)), nil
	case KindStatic:
		return NewCompletionHandle(selector, kind, "static", StaticCompleter{Response: pc.Response}), nil
	case KindHashing:
		return nil, fmt.Errorf("%w: %s (%s) cannot complete", ErrCapabilityUnsupported, selector, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// ResolveEmbedding returns an embedding handle for selector.
func (r Resolver) ResolveEmbedding(selector string) (*Handle, error) {
	pc, kind, err := r.lookup(selector)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOpenAI:
		key, err := r.apiKey(selector, pc, pc.BaseURL == "" || strings.Contains(pc.BaseURL, "api.openai.com"))
		if err != nil {
			return nil, err
		}
		model := orDefault(pc.EmbeddingModel, "text-embedding-3-small")
		e := embedopenai.NewClient(embedopenai.Config{
			BaseURL:    pc.BaseURL,
			APIKey:     key,
			Model:      model,
			Timeout:    timeout(pc),
			MaxRetries: maxRetries,
		})
		return NewEmbeddingHandle(selector, kind, model, e), nil
	case KindOllama:
		model := orDefault(pc.EmbeddingModel, "nomic-embed-text")
		e := embedollama.NewClient(embedollama.Config{
			BaseURL:    pc.BaseURL,
			Model:      model,
			Timeout:    timeout(pc),
			MaxRetries: maxRetries,
		})
		return NewEmbeddingHandle(selector, kind, model, e), nil
	case KindGemini:
		if !geminiAvailable {
			return nil, geminiUnavailable(selector)
		}
		key, err := r.geminiKey(selector, pc)
		if err != nil {
			return nil, err
		}
		e, model, err := newGeminiEmbedder(pc, key)
		if err != nil {
			return nil, err
		}
		return NewEmbeddingHandle(selector, kind, model, e), nil
	case KindHashing:
		e := embedhashing.NewEmbedder(pc.Dimensions)
		return NewEmbeddingHandle(selector, kind, strconv.Itoa(e.Dimension()), e), nil
	case KindStatic:
		e := NewStaticEmbedder(pc.Dimensions)
		return NewEmbeddingHandle(selector, kind, strconv.Itoa(len(e.vector)), e), nil
	case KindExtractive:
		return nil, fmt.Errorf("%w: %s (%s) cannot embed", ErrCapabilityUnsupported, selector, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

const maxRetries = 3

func timeout(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSecs) * time.Second
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// apiKey reads the key named by api_key_env. A key is mandatory when
// required is set; otherwise an unset api_key_env means no key.
func (r Resolver) apiKey(selector string, pc config.ProviderConfig, required bool) (string, error) {
	if pc.APIKeyEnv == "" {
		if required {
			return "", fmt.Errorf("%w: providers.%s.api_key_env is required", ErrInvalidBackendParams, selector)
		}
		return "", nil
	}
	key := r.getenv(pc.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: providers.%s: environment variable %s is not set", ErrInvalidBackendParams, selector, pc.APIKeyEnv)
	}
	return key, nil
}

func geminiUnavailable(selector string) error {
	return fmt.Errorf("%w: providers.%s: gemini (built with nogemini)", ErrBackendUnavailable, selector)
}

func (r Resolver) geminiKey(selector string, pc config.ProviderConfig) (string, error) {
	if pc.APIKeyEnv == "" {
		pc.APIKeyEnv = "GEMINI_API_KEY"
	}
	return r.apiKey(selector, pc, true)
}
