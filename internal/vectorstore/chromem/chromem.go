// Package chromem stores chunks in an embedded chromem-go database
// persisted under the cache directory.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"repochat/internal/domain"
	"repochat/internal/vectorstore"
)

const collectionName = "chunks"

// Store wraps one chromem collection.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewPersistentStore opens (or creates) a gzip-compressed database at path.
func NewPersistentStore(path string) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, domain.StorageError("open chromem db", err)
	}
	return newStore(db)
}

// NewStore creates a store that is not persisted.
func NewStore() (*Store, error) {
	return newStore(chromem.NewDB())
}

func newStore(db *chromem.DB) (*Store, error) {
	// embeddings are always supplied, so no embedding func is configured
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, domain.StorageError("open chromem collection", err)
	}
	return &Store{db: db, collection: col}, nil
}

// Upsert adds documents; chromem replaces documents with the same ID.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.Chunk.ID,
			Content:   r.Chunk.Text,
			Embedding: append([]float32(nil), r.Vector...),
			Metadata:  vectorstore.FlattenChunk(r.Chunk),
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.StorageError("chromem upsert", err)
	}
	return nil
}

// NearestNeighbors ranks every document so that ties are broken by ID
// rather than by chromem's internal ordering.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	found, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.StorageError("chromem query", err)
	}
	results := make([]domain.SearchResult, len(found))
	for i, r := range found {
		results[i] = domain.SearchResult{
			Chunk: vectorstore.UnflattenChunk(r.ID, r.Content, r.Metadata),
			Score: float64(r.Similarity),
		}
	}
	return vectorstore.TopK(results, k), nil
}

// Count returns the number of documents.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Reset deletes and recreates the collection.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return domain.StorageError("chromem reset", err)
	}
	col, err := s.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return domain.StorageError("chromem reset", fmt.Errorf("recreate collection: %w", err))
	}
	s.collection = col
	return nil
}

// Close is a no-op; documents are persisted as they are added.
func (s *Store) Close() error { return nil }

var _ vectorstore.Store = (*Store)(nil)
