// Package ollama implements domain.StreamCompleter against a local Ollama server.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"repochat/internal/domain"
	"repochat/internal/httpx"
)

// Client calls Ollama's /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	http    *httpx.Client
}

// Config configures the Ollama completion client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewClient creates a new Ollama completion client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout == 0 {
		// generation on local hardware is slow
		cfg.Timeout = 300 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    httpx.New("ollama", cfg.Timeout, cfg.MaxRetries, nil),
	}
}

// Complete returns the full completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	req := generateRequest{Model: c.model, Prompt: prompt}
	if err := c.http.PostJSON(ctx, c.baseURL+"/api/generate", req, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", domain.ErrProvider, out.Error)
	}
	return out.Response, nil
}

// CompleteStream streams the completion as NDJSON fragments.
func (c *Client) CompleteStream(ctx context.Context, prompt string) (<-chan domain.Fragment, error) {
	body, err := c.http.Stream(ctx, c.baseURL+"/api/generate", generateRequest{Model: c.model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.Fragment, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(f domain.Fragment) bool {
			select {
			case ch <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // skip malformed lines
			}
			if chunk.Error != "" {
				send(domain.Fragment{Err: fmt.Errorf("%w: ollama: %s", domain.ErrProvider, chunk.Error)})
				return
			}
			if chunk.Response != "" && !send(domain.Fragment{Text: chunk.Response}) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = domain.TransportError("ollama", err)
			}
			send(domain.Fragment{Err: err})
		}
	}()
	return ch, nil
}
