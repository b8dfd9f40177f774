package provider

import (
	"context"
	"math"

	"repochat/internal/domain"
)

// StaticCompleter answers every prompt with Response.
type StaticCompleter struct {
	Response string
}

// Complete returns the fixed response.
func (s StaticCompleter) Complete(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Response, nil
}

// StaticEmbedder returns the same unit vector for every input.
type StaticEmbedder struct {
	vector []float32
}

// NewStaticEmbedder creates an embedder with the given dimension (default 8).
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	v := make([]float32, dimensions)
	x := float32(1 / math.Sqrt(float64(dimensions)))
	for i := range v {
		v[i] = x
	}
	return &StaticEmbedder{vector: v}
}

// Embed returns one copy of the fixed vector per text.
func (s *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), s.vector...)
	}
	return out, nil
}

var (
	_ domain.Completer = StaticCompleter{}
	_ domain.Embedder  = (*StaticEmbedder)(nil)
)
