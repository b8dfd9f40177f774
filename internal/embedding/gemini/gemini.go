// Package gemini implements domain.Embedder with the genai EmbedContent API.
package gemini

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"

	"repochat/internal/domain"
	llmgemini "repochat/internal/llm/gemini"
)

// Client embeds text with a Gemini embedding model.
type Client struct {
	cli   *genai.Client
	model string
}

// NewClient creates an embedding client.
func NewClient(ctx context.Context, cfg llmgemini.Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	cli, err := llmgemini.NewGenaiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli, model: cfg.Model}, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}
	resp, err := c.cli.Models.EmbedContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, llmgemini.ClassifyError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs", domain.ErrProvider, len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: gemini returned an empty embedding", domain.ErrProvider)
		}
		out[i] = e.Values
	}
	return out, nil
}
