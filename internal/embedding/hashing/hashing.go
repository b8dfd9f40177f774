// Package hashing implements an offline feature-hashed bag-of-words embedder.
// Vectors need no corpus preparation, so indexing and querying can run
// separately without sharing any state beyond the dimension.
package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"repochat/internal/textutil"
)

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 512

// Embedder hashes tokens into a fixed number of buckets.
type Embedder struct {
	dimension int
}

// NewEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns one L2-normalized vector per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range textutil.Tokens(text) {
		tf[tok]++
	}
	vec := make([]float64, e.dimension)
	for tok, count := range tf {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		// sublinear term frequency
		vec[idx] += sign * (1 + math.Log(float64(count)))
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
