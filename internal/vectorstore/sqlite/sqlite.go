// Package sqlite is a persistent vector store on SQLite with brute-force
// cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"repochat/internal/domain"
	"repochat/internal/vectorstore"
)

// Store keeps chunks and their embeddings in one table.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewStore opens (or creates) the database file at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrIO, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, domain.StorageError("opening database", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, domain.StorageError("initializing schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes records in one transaction.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("starting transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, document_id, path, chunk_index, start_line, end_line, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return domain.StorageError("preparing statement", err)
	}
	defer stmt.Close()

	for _, r := range records {
		embeddingJSON, err := json.Marshal(r.Vector)
		if err != nil {
			return domain.StorageError("encoding embedding", err)
		}
		metadataJSON, err := json.Marshal(r.Chunk.Metadata)
		if err != nil {
			return domain.StorageError("encoding metadata", err)
		}
		c := r.Chunk
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Path, c.Index, c.StartLine, c.EndLine, c.Text, metadataJSON, embeddingJSON); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.StorageError("inserting chunk "+c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageError("committing", err)
	}
	return nil
}

// NearestNeighbors loads every embedding and ranks by cosine similarity.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, path, chunk_index, start_line, end_line, content, metadata, embedding
		FROM chunks
	`)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.StorageError("querying chunks", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var c domain.Chunk
		var metadataJSON, embeddingJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Path, &c.Index, &c.StartLine, &c.EndLine, &c.Text, &metadataJSON, &embeddingJSON); err != nil {
			return nil, domain.StorageError("scanning row", err)
		}
		var emb []float32
		if err := json.Unmarshal(embeddingJSON, &emb); err != nil {
			return nil, domain.StorageError("decoding embedding", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, domain.StorageError("decoding metadata", err)
		}
		results = append(results, domain.SearchResult{Chunk: c, Score: vectorstore.Cosine(emb, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterating rows", err)
	}
	return vectorstore.TopK(results, k), nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, domain.StorageError("counting chunks", err)
	}
	return n, nil
}

// Reset deletes every chunk.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return domain.StorageError("deleting chunks", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ vectorstore.Store = (*Store)(nil)
