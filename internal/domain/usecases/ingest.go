// Package usecases contains the application rules: the agent loop, the
// retrieval pipeline, indexing. Usecases depend on port interfaces only.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 50
)

// IngestUseCase chunks documents, embeds the chunks and stores them.
type IngestUseCase struct {
	embedder     ports.EmbeddingService
	vectorStore  ports.VectorStore
	chunkSize    int
	chunkOverlap int
}

// NewIngestUseCase creates an IngestUseCase. Sizes are in bytes of text.
func NewIngestUseCase(
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	chunkSize, chunkOverlap int,
) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = min(defaultChunkOverlap, chunkSize/2)
	}
	return &IngestUseCase{
		embedder:     embedder,
		vectorStore:  vectorStore,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest replaces the stored chunks of doc with fresh ones. It returns the
// number of chunks written.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) (int, error) {
	if err := uc.vectorStore.Delete(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("deleting old chunks of %s: %w", doc.Name, err)
	}

	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", doc.Name, err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.Name, len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.vectorStore.Store(ctx, chunks); err != nil {
		return 0, fmt.Errorf("storing %s: %w", doc.Name, err)
	}
	metrics.IndexedChunksTotal.Add(float64(len(chunks)))
	return len(chunks), nil
}

// Delete removes a document from the store.
func (uc *IngestUseCase) Delete(ctx context.Context, documentID string) error {
	return uc.vectorStore.Delete(ctx, documentID)
}

// chunkDocument splits content into overlapping chunks, breaking at the last
// space of a window when there is one. Cuts always fall on rune boundaries.
func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil
	}
	source := entities.NewSource(doc.Name, doc.Path)

	var chunks []entities.Chunk
	for start, index := 0, 0; start < len(content); {
		end := min(start+uc.chunkSize, len(content))
		if end < len(content) {
			end = runeFloor(content, end)
			if end <= start {
				end = runeCeil(content, start+1)
			}
			if lastSpace := strings.LastIndex(content[start:end], " "); lastSpace > 0 {
				end = start + lastSpace
			}
		}

		if text := strings.TrimSpace(content[start:end]); text != "" {
			chunks = append(chunks, entities.Chunk{
				ID:         chunkID(doc.ID, index),
				DocumentID: doc.ID,
				Content:    text,
				Index:      index,
				Source:     source,
			})
			index++
		}
		if end >= len(content) {
			break
		}

		next := runeFloor(content, end-uc.chunkOverlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// runeFloor moves i back to the start of the rune containing it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// chunkID is deterministic so re-ingesting a document yields the same ids.
func chunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(docID + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(hash[:8])
}
