package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/config"
	"repochat/internal/domain"
)

// Test Plan for Resolver:
// - every configured kind resolves to the capabilities it supports
// - unknown selectors and kinds fail with configuration errors
// - capability mismatches fail without constructing a client
// - missing API keys fail before any network call
// - repeated resolution yields equivalent handles

func testConfig(providers map[string]config.ProviderConfig) *config.Config {
	cfg := config.Default()
	cfg.Providers = providers
	return cfg
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestResolve_Kinds(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderConfig{
		"oai":    {Kind: "openai", APIKeyEnv: "KEY", Model: "gpt-x", EmbeddingModel: "emb-x"},
		"local":  {Kind: "ollama", Model: "llama3.2"},
		"ext":    {Kind: "extractive"},
		"hash":   {Kind: "hashing", Dimensions: 32},
		"static": {Kind: "static", Response: "fixed", Dimensions: 4},
	})
	r := NewResolver(cfg).WithEnv(env(map[string]string{"KEY": "k"}))

	tests := []struct {
		selector   string
		completion bool
		embedding  bool
		identity   string
	}{
		{"oai", true, true, "openai/emb-x"},
		{"local", true, true, "ollama/nomic-embed-text"},
		{"ext", true, false, ""},
		{"hash", false, true, "hashing/32"},
		{"static", true, true, "static/4"},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			h, err := r.ResolveCompletion(tt.selector)
			if tt.completion {
				require.NoError(t, err)
				assert.Equal(t, CapabilityCompletion, h.Capability)
				assert.NotNil(t, h.Completer)
				assert.Equal(t, tt.selector, h.Name)
			} else {
				assert.ErrorIs(t, err, ErrCapabilityUnsupported)
				assert.ErrorIs(t, err, domain.ErrConfiguration)
			}

			h, err = r.ResolveEmbedding(tt.selector)
			if tt.embedding {
				require.NoError(t, err)
				assert.Equal(t, CapabilityEmbedding, h.Capability)
				assert.NotNil(t, h.Embedder)
				assert.Equal(t, tt.identity, h.Identity())
			} else {
				assert.ErrorIs(t, err, ErrCapabilityUnsupported)
			}
		})
	}
}

func TestResolve_UnknownSelector(t *testing.T) {
	r := NewResolver(testConfig(map[string]config.ProviderConfig{}))

	_, err := r.ResolveCompletion("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, domain.KindConfiguration, domain.Classify(err))

	_, err = r.ResolveEmbedding("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestResolve_UnknownKindFailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	r := NewResolver(testConfig(map[string]config.ProviderConfig{
		"x": {Kind: "llamafile", BaseURL: server.URL},
	}))

	_, err := r.ResolveCompletion("x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	_, err = r.ResolveEmbedding("x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Zero(t, hits.Load())
}

func TestResolve_MissingAPIKey(t *testing.T) {
	r := NewResolver(testConfig(map[string]config.ProviderConfig{
		"oai":     {Kind: "openai", APIKeyEnv: "MISSING"},
		"nokey":   {Kind: "openai"},
		"gateway": {Kind: "openai", BaseURL: "http://localhost:8080/v1"},
	})).WithEnv(env(nil))

	_, err := r.ResolveCompletion("oai")
	assert.ErrorIs(t, err, ErrInvalidBackendParams)
	assert.Contains(t, err.Error(), "MISSING")

	_, err = r.ResolveEmbedding("nokey")
	assert.ErrorIs(t, err, ErrInvalidBackendParams)

	// self-hosted OpenAI-compatible gateways may run without a key
	_, err = r.ResolveCompletion("gateway")
	assert.NoError(t, err)
}

func TestResolve_Repeatable(t *testing.T) {
	r := NewResolver(testConfig(map[string]config.ProviderConfig{
		"static": {Kind: "static", Response: "same", Dimensions: 3},
	}))

	a, err := r.ResolveEmbedding("static")
	require.NoError(t, err)
	b, err := r.ResolveEmbedding("static")
	require.NoError(t, err)
	assert.Equal(t, a.Identity(), b.Identity())
	assert.NotSame(t, a, b)

	va, err := a.Embedder.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	vb, err := b.Embedder.Embed(context.Background(), []string{"y"})
	require.NoError(t, err)
	assert.Equal(t, va, vb)

	c1, err := r.ResolveCompletion("static")
	require.NoError(t, err)
	out, err := c1.Completer.Complete(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "same", out)
}

func TestPreflight(t *testing.T) {
	cfg := testConfig(map[string]config.ProviderConfig{
		"static": {Kind: "static"},
		"hash":   {Kind: "hashing"},
	})
	cfg.IndexingProvider = "static"
	cfg.EmbeddingProvider = "hash"
	cfg.QueryProvider = "static"
	assert.NoError(t, NewResolver(cfg).Preflight())

	cfg.QueryProvider = "hash"
	err := NewResolver(cfg).Preflight()
	assert.ErrorIs(t, err, ErrCapabilityUnsupported)
	assert.Contains(t, err.Error(), "query_provider")
}
