package usecases

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

func TestIngestUseCase_ChunksDocument(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 100, 20)

	doc := &entities.Document{
		ID:      "doc-1",
		Name:    "test.txt",
		Path:    "/data/test.txt",
		Content: "This is some content that should be chunked properly.",
	}

	n, err := uc.Ingest(context.Background(), doc)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if n != 1 || len(store.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d stored %d", n, len(store.chunks))
	}
	got := store.chunks[0].Source
	if got.FileName != "test.txt" || got.Path != "/data/test.txt" || got.FileType != "txt" {
		t.Errorf("unexpected source: %+v", got)
	}
}

func TestIngestUseCase_EmptyDocument(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 100, 20)

	n, err := uc.Ingest(context.Background(), &entities.Document{ID: "empty", Content: "  "})
	if err != nil {
		t.Error("empty doc should not error")
	}
	if n != 0 || len(store.chunks) != 0 {
		t.Error("empty doc should produce no chunks")
	}
}

func TestIngestUseCase_LargeDocumentOverlaps(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 50, 10)

	doc := &entities.Document{ID: "big", Name: "big.txt", Content: strings.Repeat("word ", 40)}
	if _, err := uc.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if len(store.chunks) < 4 {
		t.Fatalf("expected several chunks, got %d", len(store.chunks))
	}

	ids := map[string]bool{}
	for i, c := range store.chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Content) > 50 {
			t.Errorf("chunk %d longer than chunk size: %d", i, len(c.Content))
		}
		if ids[c.ID] {
			t.Errorf("duplicate chunk id %s", c.ID)
		}
		ids[c.ID] = true
	}
}

func TestIngestUseCase_NoSpacesTerminates(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 16, 8)

	if _, err := uc.Ingest(context.Background(), &entities.Document{ID: "x", Content: strings.Repeat("x", 100)}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if len(store.chunks) == 0 {
		t.Fatal("expected chunks")
	}
}

func TestIngestUseCase_MultibyteTextKeepsRunesWhole(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 100, 20)

	content := strings.Repeat("請求書合計", 60)
	if _, err := uc.Ingest(context.Background(), &entities.Document{ID: "cjk", Name: "請求書.txt", Content: content}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if len(store.chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(store.chunks))
	}
	for i, c := range store.chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c.Content)
		}
		if len(c.Content) > 100 {
			t.Errorf("chunk %d longer than chunk size: %d", i, len(c.Content))
		}
	}
	if !strings.HasSuffix(content, store.chunks[len(store.chunks)-1].Content) {
		t.Error("last chunk should reach the end of the document")
	}
}

func TestIngestUseCase_ChunkSmallerThanRune(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 2, 1)

	if _, err := uc.Ingest(context.Background(), &entities.Document{ID: "tiny", Content: "日本語"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	var got []string
	for _, c := range store.chunks {
		got = append(got, c.Content)
	}
	if strings.Join(got, "|") != "日|本|語" {
		t.Errorf("unexpected chunks: %q", got)
	}
}

func TestIngestUseCase_ReingestReplacesChunks(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 100, 20)
	doc := &entities.Document{ID: "doc-1", Name: "a.txt", Content: "first version"}

	if _, err := uc.Ingest(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	doc.Content = "second version"
	if _, err := uc.Ingest(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	if len(store.chunks) != 1 || store.chunks[0].Content != "second version" {
		t.Errorf("expected only the new chunk, got %+v", store.chunks)
	}
}

func TestIngestUseCase_Delete(t *testing.T) {
	store := &mockVectorStore{}
	uc := NewIngestUseCase(&mockEmbedder{}, store, 100, 20)

	if err := uc.Delete(context.Background(), "doc-1"); err != nil {
		t.Errorf("delete failed: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "doc-1" {
		t.Errorf("unexpected deletes: %v", store.deleted)
	}
}
