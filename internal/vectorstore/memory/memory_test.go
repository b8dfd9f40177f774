package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
	"repochat/internal/vectorstore"
)

func rec(id string, v ...float32) vectorstore.Record {
	return vectorstore.Record{Chunk: domain.Chunk{ID: id, Text: "text " + id}, Vector: v}
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec("a", 1, 0), rec("b", 0, 1)}))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec("a", 1, 0), rec("b", 0, 1)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_NearestNeighborsDeterministic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{
		rec("c", 1, 0), rec("a", 1, 0), rec("b", 0, 1), rec("d", 1, 1),
	}))

	for i := 0; i < 5; i++ {
		got, err := s.NearestNeighbors(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a", got[0].Chunk.ID)
		assert.Equal(t, "c", got[1].Chunk.ID)
		assert.Equal(t, "d", got[2].Chunk.ID)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec("a", 1, 0)}))

	err := s.Upsert(ctx, []vectorstore.Record{rec("b", 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = s.NearestNeighbors(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec("a", 1)}))
	require.NoError(t, s.Reset(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.NearestNeighbors(ctx, []float32{1, 2}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
