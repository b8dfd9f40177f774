// Package qdrant is a minimal REST client to Qdrant implementing vectorstore.Store.
// It assumes cosine distance and creates the collection on first write.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"repochat/internal/domain"
	"repochat/internal/httpx"
	"repochat/internal/vectorstore"
)

// pointNamespace derives stable point UUIDs from chunk IDs; Qdrant only
// accepts unsigned integers or UUIDs as point IDs.
var pointNamespace = uuid.MustParse("6f1c2b8e-7a43-4c1e-9a57-2d0f4e8b9c31")

// Config contains connection details for a Qdrant collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Store talks to one collection.
type Store struct {
	url        string
	collection string
	http       *httpx.Client

	mu        sync.Mutex
	dimension int
}

// NewStore creates a store. No request is made until first use.
func NewStore(cfg Config) *Store {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "repochat"
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("api-key", cfg.APIKey)
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		http:       httpx.New("qdrant", cfg.Timeout, 2, header),
	}
}

func (s *Store) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == dimension {
		return nil
	}
	if s.dimension != 0 {
		return fmt.Errorf("vector dimension %d does not match collection dimension %d", dimension, s.dimension)
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.http.Do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("collection %s has dimension %d, want %d", s.collection, size, dimension)
		}
	case httpx.IsStatus(err, http.StatusNotFound):
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.http.PutJSON(ctx, s.collectionURL(""), body, nil); err != nil {
			return err
		}
	default:
		return err
	}
	s.dimension = dimension
	return nil
}

// Upsert writes points with wait=true so they are searchable on return.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return storageError("qdrant create collection", err)
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != len(records[0].Vector) {
			return domain.StorageError("qdrant upsert", errors.New("mixed vector dimensions in batch"))
		}
		payload := map[string]any{"chunk_id": r.Chunk.ID, "text": r.Chunk.Text}
		for k, v := range vectorstore.FlattenChunk(r.Chunk) {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      uuid.NewSHA1(pointNamespace, []byte(r.Chunk.ID)).String(),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	if err := s.http.PutJSON(ctx, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return storageError("qdrant upsert", err)
	}
	return nil
}

// NearestNeighbors searches the collection. A missing collection is empty.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.http.PostJSON(ctx, s.collectionURL("/points/search"), req, &resp); err != nil {
		if httpx.IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, storageError("qdrant search", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		flat := make(map[string]string, len(r.Payload))
		for key, v := range r.Payload {
			if str, ok := v.(string); ok {
				flat[key] = str
			}
		}
		id, text := flat["chunk_id"], flat["text"]
		delete(flat, "chunk_id")
		delete(flat, "text")
		results = append(results, domain.SearchResult{Chunk: vectorstore.UnflattenChunk(id, text, flat), Score: r.Score})
	}
	vectorstore.SortResults(results)
	return results, nil
}

// Count returns the exact number of points.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.http.PostJSON(ctx, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		if httpx.IsStatus(err, http.StatusNotFound) {
			return 0, nil
		}
		return 0, storageError("qdrant count", err)
	}
	return resp.Result.Count, nil
}

// Reset drops the collection; it is recreated on the next Upsert.
func (s *Store) Reset(ctx context.Context) error {
	err := s.http.Do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !httpx.IsStatus(err, http.StatusNotFound) {
		return storageError("qdrant reset", err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func storageError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.StorageError(op, err)
}

var _ vectorstore.Store = (*Store)(nil)
