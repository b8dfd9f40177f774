// Package gemini implements domain.StreamCompleter with the official genai client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"repochat/internal/domain"
)

// Config configures the Gemini client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewGenaiClient builds a Gemini API client. No request is made.
func NewGenaiClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.ConfigError("gemini client: %v", err)
	}
	return cli, nil
}

// ClassifyError maps genai errors onto the domain error kinds.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.StatusError("gemini", apiErr.Code, apiErr.Message)
	}
	return domain.TransportError("gemini", err)
}

// Client is a thin wrapper around the genai models service.
type Client struct {
	cli   *genai.Client
	model string
}

// NewClient creates a completion client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cli, err := NewGenaiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli, model: cfg.Model}, nil
}

func contents(prompt string) []*genai.Content {
	return []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}}}
}

// Complete returns the text of the first candidate.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.cli.Models.GenerateContent(ctx, c.model, contents(prompt), nil)
	if err != nil {
		return "", ClassifyError(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no candidates", domain.ErrProvider)
	}
	return text, nil
}

// CompleteStream forwards each streamed response as one fragment.
func (c *Client) CompleteStream(ctx context.Context, prompt string) (<-chan domain.Fragment, error) {
	ch := make(chan domain.Fragment, 16)
	go func() {
		defer close(ch)
		for resp, err := range c.cli.Models.GenerateContentStream(ctx, c.model, contents(prompt), nil) {
			f := domain.Fragment{}
			if err != nil {
				if ctx.Err() != nil {
					f.Err = ctx.Err()
				} else {
					f.Err = ClassifyError(err)
				}
			} else {
				f.Text = responseText(resp)
				if f.Text == "" {
					continue
				}
			}
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
			if f.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
