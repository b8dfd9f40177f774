// Package openai implements domain.StreamCompleter against any
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"repochat/internal/domain"
	"repochat/internal/httpx"
)

const systemPrompt = "You are a precise assistant that answers questions about a source code repository."

// Client calls /chat/completions.
type Client struct {
	baseURL string
	model   string
	http    *httpx.Client
}

// Config configures the chat completions client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
		Delta   message `json:"delta"`
	} `json:"choices"`
}

// NewClient creates a chat completions client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    httpx.New("openai", cfg.Timeout, cfg.MaxRetries, header),
	}
}

func (c *Client) request(prompt string, stream bool) chatRequest {
	return chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream: stream,
	}
}

// Complete returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var out chatResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/chat/completions", c.request(prompt, false), &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrProvider)
	}
	return out.Choices[0].Message.Content, nil
}

// CompleteStream reads server-sent events until "data: [DONE]".
func (c *Client) CompleteStream(ctx context.Context, prompt string) (<-chan domain.Fragment, error) {
	body, err := c.http.Stream(ctx, c.baseURL+"/chat/completions", c.request(prompt, true))
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
			line := bytes.TrimSpace(scanner.Bytes())
			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			data = bytes.TrimSpace(data)
			if string(data) == "[DONE]" {
				return
			}
			var chunk chatResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(domain.Fragment{Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = domain.TransportError("openai", err)
			}
			send(domain.Fragment{Err: err})
		}
	}()
	return ch, nil
}
