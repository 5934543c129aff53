// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

// Sampling controls one generation call.
type Sampling struct {
	MaxTokens   int
	Temperature float64
}

// Purpose labels a generation call for metrics and logs.
type Purpose string

const (
	PurposeRewrite   Purpose = "rewrite"
	PurposeAgent     Purpose = "agent"
	PurposeMap       Purpose = "map"
	PurposeSynthesis Purpose = "synthesis"
	PurposeSummary   Purpose = "summary"
)

// GenerateRequest is one call to the text-generation model.
type GenerateRequest struct {
	System   string
	Messages []entities.ConversationTurn
	Sampling Sampling
	Purpose  Purpose

	// OnToken, when set, receives generated text as it streams.
	OnToken func(string)
}

// Generator produces text from the on-device model. Implementations return an
// error wrapping entities.ErrModelUnavailable when the runtime cannot serve.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists and queries chunk embeddings.
type VectorStore interface {
	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Search finds the most similar chunks to a query embedding.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)

	// Delete removes all chunks for a document.
	Delete(ctx context.Context, documentID string) error

	// Clear removes all data from the store.
	Clear(ctx context.Context) error
}

// ChunkSearcher is the vector index as the retrieval pipeline sees it.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, k int) ([]entities.QueryResult, error)
}

// TextExtractor reads the text of a file. Errors wrap entities.ErrFileRead.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FileFinder finds files whose name contains one of several patterns.
// Paths come back grouped by pattern in the order given, without repeats,
// each pattern contributing at most perPattern paths. The tree is walked
// once per call and the walk stops when ctx is done.
type FileFinder interface {
	FindByName(ctx context.Context, patterns []string, perPattern int) ([]string, error)
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// ToolResult is what a tool hands back to the agent loop.
type ToolResult struct {
	Text string
	// Sources lists file names the result was drawn from.
	Sources []string
	// Evidence is the representative chunk text of a retrieval, if any.
	Evidence string
}

// FileTools answers filesystem questions about one directory. Results are
// human-readable text.
type FileTools interface {
	CountFiles(ctx context.Context, c command.CountFiles) (string, error)
	ListFiles(ctx context.Context, c command.ListFiles) (string, error)
	GrepFiles(ctx context.Context, c command.GrepFiles) (string, error)
	FileMetadata(ctx context.Context, c command.FileMetadata) (string, error)
	DirectoryTree(ctx context.Context, c command.DirectoryTree) (string, error)
	FolderStats(ctx context.Context, c command.FolderStats) (string, error)
	DiskUsage(ctx context.Context) (string, error)
}

// ToolExecutor runs one tool command.
type ToolExecutor interface {
	Execute(ctx context.Context, cmd command.Command) (ToolResult, error)
}

// ConversationStore keeps conversation turns per conversation id.
type ConversationStore interface {
	Load(ctx context.Context, conversationID string) ([]entities.ConversationTurn, error)
	Append(ctx context.Context, conversationID string, turns ...entities.ConversationTurn) error
	Clear(ctx context.Context, conversationID string) error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
