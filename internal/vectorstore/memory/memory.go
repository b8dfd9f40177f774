// Package memory is an in-process vector store using brute-force cosine
// similarity. Its contents live as long as the process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"repochat/internal/domain"
	"repochat/internal/vectorstore"
)

// Store keeps records in a map keyed by chunk ID.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]vectorstore.Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]vectorstore.Record)}
}

// Upsert inserts or replaces records. All vectors must share one dimension.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return domain.StorageError("memory upsert", fmt.Errorf("vector dimension mismatch for %s: got %d, want %d", r.Chunk.ID, len(r.Vector), dim))
		}
	}
	s.dimension = dim
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		s.records[r.Chunk.ID] = r
	}
	return nil
}

// NearestNeighbors scores every record against vector.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, domain.StorageError("memory search", fmt.Errorf("query dimension %d, index dimension %d", len(vector), s.dimension))
	}
	results := make([]domain.SearchResult, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, domain.SearchResult{Chunk: r.Chunk, Score: vectorstore.Cosine(r.Vector, vector)})
	}
	return vectorstore.TopK(results, k), nil
}

// Count returns the number of stored records.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Reset drops every record.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]vectorstore.Record)
	s.dimension = 0
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ vectorstore.Store = (*Store)(nil)
