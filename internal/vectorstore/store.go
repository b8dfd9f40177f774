// Package vectorstore defines the storage contract for embedded chunks and
// the index manifest kept next to it.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"strconv"

	"repochat/internal/domain"
)

// Record is a chunk with its embedding.
type Record struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Store persists records keyed by chunk ID and answers similarity queries.
// Upsert replaces records with the same ID, so re-indexing is idempotent.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	// NearestNeighbors returns at most k results ordered by score
	// descending, then chunk ID ascending.
	NearestNeighbors(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	// Reset drops every record.
	Reset(ctx context.Context) error
	Close() error
}

// SortResults orders results by score descending, then chunk ID ascending.
// NaN scores sort last.
func SortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Score, results[j].Score
		an, bn := math.IsNaN(a), math.IsNaN(b)
		if an != bn {
			return bn
		}
		if a != b && !an {
			return a > b
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// TopK sorts results and keeps the first k.
func TopK(results []domain.SearchResult, k int) []domain.SearchResult {
	SortResults(results)
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Flat metadata keys used by stores that only hold string maps.
const (
	keyDocumentID = "_document_id"
	keyPath       = "_path"
	keyIndex      = "_index"
	keyStartLine  = "_start_line"
	keyEndLine    = "_end_line"
)

// FlattenChunk encodes the chunk's fields other than ID and Text as a
// string map, merged with its metadata.
func FlattenChunk(c domain.Chunk) map[string]string {
	m := make(map[string]string, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		m[k] = v
	}
	m[keyDocumentID] = c.DocumentID
	m[keyPath] = c.Path
	m[keyIndex] = strconv.Itoa(c.Index)
	m[keyStartLine] = strconv.Itoa(c.StartLine)
	m[keyEndLine] = strconv.Itoa(c.EndLine)
	return m
}

// UnflattenChunk reverses FlattenChunk.
func UnflattenChunk(id, text string, m map[string]string) domain.Chunk {
	c := domain.Chunk{ID: id, Text: text, Metadata: map[string]string{}}
	for k, v := range m {
		switch k {
		case keyDocumentID:
			c.DocumentID = v
		case keyPath:
			c.Path = v
		case keyIndex:
			c.Index, _ = strconv.Atoi(v)
		case keyStartLine:
			c.StartLine, _ = strconv.Atoi(v)
		case keyEndLine:
			c.EndLine, _ = strconv.Atoi(v)
		default:
			c.Metadata[k] = v
		}
	}
	return c
}
