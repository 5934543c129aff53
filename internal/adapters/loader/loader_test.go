package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

type stubParser struct {
	text string
	err  error
}

func (p stubParser) Parse(context.Context, []byte, string) (string, error) { return p.text, p.err }
func (stubParser) SupportedFormats() []string                             { return []string{"pdf"} }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextLoader_LoadTxtFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "test.txt", "Hello World")

	doc, err := NewTextLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", doc.Content)
	assert.Equal(t, "test.txt", doc.Name)
	assert.Equal(t, entities.DocumentID(path), doc.ID)
}

func TestTextLoader_MissingFile(t *testing.T) {
	_, err := NewTextLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, entities.ErrFileRead)
}

func TestPDFLoader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doc.pdf", "%PDF-1.4")

	doc, err := NewPDFLoader(stubParser{text: "  page one\x00\x07\n"}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "page one", doc.Content)

	_, err = NewPDFLoader(stubParser{err: errors.New("service down")}).Load(context.Background(), path)
	assert.ErrorIs(t, err, entities.ErrFileRead)
}

func TestMultiLoader(t *testing.T) {
	dir := t.TempDir()
	m := NewMultiLoader(stubParser{text: "pdf text"})

	assert.Contains(t, m.SupportedExtensions(), ".pdf")
	assert.Contains(t, m.SupportedExtensions(), ".md")

	doc, err := m.Load(context.Background(), writeFile(t, dir, "a.PDF", "x"))
	require.NoError(t, err)
	assert.Equal(t, "pdf text", doc.Content)

	_, err = m.Load(context.Background(), writeFile(t, dir, "a.docx", "x"))
	assert.ErrorIs(t, err, entities.ErrFileRead)

	assert.NotContains(t, NewMultiLoader(nil).SupportedExtensions(), ".pdf")
}

func TestExtractor(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor(NewMultiLoader(nil), 5)

	text, err := e.Extract(context.Background(), writeFile(t, dir, "long.txt", "  héllo world "))
	require.NoError(t, err)
	assert.Equal(t, "héllo", text)

	_, err = e.Extract(context.Background(), writeFile(t, dir, "blank.txt", "   \n"))
	assert.ErrorIs(t, err, entities.ErrFileRead)

	_, err = e.Extract(context.Background(), writeFile(t, dir, "x.bin", "data"))
	assert.ErrorIs(t, err, entities.ErrFileRead)
}

func TestExtractor_DefaultLimit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "big.md", strings.Repeat("a", DefaultMaxChars+10))
	text, err := NewExtractor(NewMultiLoader(nil), 0).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, text, DefaultMaxChars)
}
