// Package ollama implements domain.Embedder using Ollama's embeddings API.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"repochat/internal/domain"
	"repochat/internal/httpx"
)

// Client calls /api/embeddings once per input text.
type Client struct {
	baseURL string
	model   string
	http    *httpx.Client
}

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new Ollama embeddings client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    httpx.New("ollama embeddings", cfg.Timeout, cfg.MaxRetries, nil),
	}
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}{Model: c.model, Prompt: text}
		var out struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := c.http.PostJSON(ctx, c.baseURL+"/api/embeddings", req, &out); err != nil {
			return nil, err
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("%w: ollama returned an empty embedding", domain.ErrProvider)
		}
		vectors = append(vectors, out.Embedding)
	}
	return vectors, nil
}
