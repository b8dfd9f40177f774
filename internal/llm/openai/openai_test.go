package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "what is main?", req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"the entry point"}}]}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/v1", APIKey: "k", Timeout: time.Second})
	out, err := c.Complete(context.Background(), "what is main?")
	require.NoError(t, err)
	assert.Equal(t, "the entry point", out)
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	_, err := c.Complete(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	ch, err := c.CompleteStream(context.Background(), "q")
	require.NoError(t, err)

	var sb strings.Builder
	for f := range ch {
		require.NoError(t, f.Err)
		sb.WriteString(f.Text)
	}
	assert.Equal(t, "Hello", sb.String())
}

func TestCompleteStream_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: time.Second})
	_, err := c.CompleteStream(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrProviderUnreachable)
}
