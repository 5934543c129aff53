// Package loader reads files into documents and extracts their text.
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// MaxFileBytes caps the size of a file read into memory.
const MaxFileBytes = 32 << 20

var textExtensions = []string{
	".txt", ".md", ".markdown", ".csv", ".json", ".log", ".yaml", ".yml",
	".html", ".htm", ".xml", ".rst", ".go", ".py", ".js", ".ts",
}

// TextLoader loads plain text documents.
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text document from the given path.
func (l *TextLoader) Load(_ context.Context, path string) (*entities.Document, error) {
	data, info, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	return newDocument(path, info, string(data)), nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return textExtensions
}

// PDFLoader loads PDF documents through a DocumentParser.
type PDFLoader struct {
	parser ports.DocumentParser
}

// NewPDFLoader creates a PDF loader backed by parser.
func NewPDFLoader(parser ports.DocumentParser) *PDFLoader {
	return &PDFLoader{parser: parser}
}

// Load reads and parses a PDF.
func (l *PDFLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, info, err := readFile(path)
	if err != nil {
		return nil, err
	}
	text, err := l.parser.Parse(ctx, data, path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", filepath.Base(path), err, entities.ErrFileRead)
	}
	return newDocument(path, info, cleanPDFContent(text)), nil
}

// SupportedExtensions returns file extensions.
func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

// MultiLoader dispatches on file extension.
type MultiLoader struct {
	loaders map[string]ports.DocumentLoader
}

// NewMultiLoader creates a loader for text files, and for PDFs when parser
// is not nil.
func NewMultiLoader(parser ports.DocumentParser) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.DocumentLoader)}
	m.Register(NewTextLoader())
	if parser != nil {
		m.Register(NewPDFLoader(parser))
	}
	return m
}

// Register routes every extension of l to it.
func (m *MultiLoader) Register(l ports.DocumentLoader) {
	for _, ext := range l.SupportedExtensions() {
		m.loaders[strings.ToLower(ext)] = l
	}
}

// Load dispatches to the loader registered for the extension of path.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q: %w", ext, entities.ErrFileRead)
	}
	return l.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func readFile(path string) ([]byte, os.FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %v: %w", path, err, entities.ErrFileRead)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %v: %w", path, err, entities.ErrFileRead)
	}
	if info.Size() > MaxFileBytes {
		return nil, nil, fmt.Errorf("%s is %d bytes: %w", path, info.Size(), entities.ErrFileRead)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %v: %w", path, err, entities.ErrFileRead)
	}
	return data, info, nil
}

func newDocument(path string, info os.FileInfo, content string) *entities.Document {
	return &entities.Document{
		ID:        entities.DocumentID(path),
		Name:      filepath.Base(path),
		Path:      path,
		Content:   content,
		CreatedAt: info.ModTime(),
		UpdatedAt: time.Now(),
	}
}

// cleanPDFContent drops control characters left by extraction.
func cleanPDFContent(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || (unicode.IsPrint(r) && r != utf8.RuneError) {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
