package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

func testChunks() []entities.Chunk {
	src := entities.NewSource("notes.md", "/docs/notes.md")
	return []entities.Chunk{
		{ID: "c1", DocumentID: "doc1", Content: "hello", Embedding: []float32{1, 0, 0}, Source: src},
		{ID: "c2", DocumentID: "doc1", Content: "world", Index: 1, Embedding: []float32{0, 1, 0}, Source: src},
		{ID: "c3", DocumentID: "doc2", Content: "other", Embedding: []float32{0.7, 0.7, 0}},
	}
}

func stores(t *testing.T) map[string]ports.VectorStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]ports.VectorStore{
		"memory": NewInMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStores_StoreAndSearch(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Store(ctx, testChunks()))

			results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "c1", results[0].Chunk.ID)
			assert.Equal(t, "c3", results[1].Chunk.ID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-6)
			assert.Equal(t, "notes.md", results[0].Chunk.Source.FileName)
			assert.Equal(t, "md", results[0].Chunk.Source.FileType)
			assert.Equal(t, []float32{1, 0, 0}, results[0].Chunk.Embedding)
		})
	}
}

func TestStores_DeleteAndClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Store(ctx, testChunks()))

			require.NoError(t, store.Delete(ctx, "doc1"))
			results, err := store.Search(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "c3", results[0].Chunk.ID)

			require.NoError(t, store.Delete(ctx, "missing"))
			require.NoError(t, store.Clear(ctx))
			results, err = store.Search(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestStores_ReplaceChunk(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Store(ctx, testChunks()[:1]))
			updated := testChunks()[0]
			updated.Content = "hello again"
			require.NoError(t, store.Store(ctx, []entities.Chunk{updated}))

			results, err := store.Search(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "hello again", results[0].Chunk.Content)
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, testChunks()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
