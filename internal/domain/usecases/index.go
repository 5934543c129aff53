package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// SemanticIndex is the vector index: queries are embedded and matched
// against stored chunk embeddings.
type SemanticIndex struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
}

// NewSemanticIndex creates a SemanticIndex.
func NewSemanticIndex(embedder ports.EmbeddingService, vectorStore ports.VectorStore) *SemanticIndex {
	return &SemanticIndex{embedder: embedder, vectorStore: vectorStore}
}

// Search returns the k chunks most similar to query, best first.
func (ix *SemanticIndex) Search(ctx context.Context, query string, k int) ([]entities.QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := ix.vectorStore.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return results, nil
}

// Insert adds a single passage attributed to source.
func (ix *SemanticIndex) Insert(ctx context.Context, text string, source entities.Source) error {
	embedding, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding passage: %w", err)
	}
	sum := sha256.Sum256([]byte(source.Path + "\x00" + text))
	id := hex.EncodeToString(sum[:8])
	return ix.vectorStore.Store(ctx, []entities.Chunk{{
		ID:         id,
		DocumentID: source.Path,
		Content:    text,
		Embedding:  embedding,
		Source:     source,
	}})
}
