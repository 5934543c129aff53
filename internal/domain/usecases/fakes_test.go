package usecases

import (
	"context"
	"strings"
	"sync"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// fakeGenerator answers generation requests from a function and records
// every request.
type fakeGenerator struct {
	mu    sync.Mutex
	fn    func(req ports.GenerateRequest) (string, error)
	calls []ports.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	out, err := g.fn(req)
	if err == nil && req.OnToken != nil {
		req.OnToken(out)
	}
	return out, err
}

func (g *fakeGenerator) count(p ports.Purpose) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}

// scripted returns replies per purpose in order; once a script runs out the
// last reply repeats.
func scripted(scripts map[ports.Purpose][]string) *fakeGenerator {
	var mu sync.Mutex
	pos := map[ports.Purpose]int{}
	return &fakeGenerator{fn: func(req ports.GenerateRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		s := scripts[req.Purpose]
		if len(s) == 0 {
			return "", nil
		}
		i := min(pos[req.Purpose], len(s)-1)
		pos[req.Purpose]++
		return s[i], nil
	}}
}

// fakeTools is a ToolExecutor returning canned results per tool.
type fakeTools struct {
	results map[command.Name]ports.ToolResult
	errs    map[command.Name]error
	ran     []command.Command
}

func (f *fakeTools) Execute(_ context.Context, cmd command.Command) (ports.ToolResult, error) {
	f.ran = append(f.ran, cmd)
	if err := f.errs[cmd.Name()]; err != nil {
		return ports.ToolResult{}, &entities.ToolExecutionError{Tool: string(cmd.Name()), Err: err}
	}
	if r, ok := f.results[cmd.Name()]; ok {
		return r, nil
	}
	return ports.ToolResult{Text: "ok"}, nil
}

// fakeIndex returns fixed search results.
type fakeIndex struct {
	results []entities.QueryResult
	err     error
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]entities.QueryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

// fakeFinder matches patterns against a fixed list of paths.
type fakeFinder struct {
	paths    []string
	calls    int
	patterns []string
}

func (f *fakeFinder) FindByName(ctx context.Context, patterns []string, perPattern int) ([]string, error) {
	f.calls++
	f.patterns = append(f.patterns, patterns...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, pattern := range patterns {
		n := 0
		for _, p := range f.paths {
			if n == perPattern {
				break
			}
			if strings.Contains(strings.ToLower(p), strings.ToLower(pattern)) {
				n++
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
	}
	return out, nil
}

// fakeExtractor serves file texts from a map.
type fakeExtractor struct {
	mu     sync.Mutex
	texts  map[string]string
	read   []string
	onRead func()
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, path)
	if f.onRead != nil {
		f.onRead()
	}
	text, ok := f.texts[path]
	if !ok {
		return "", entities.ErrFileRead
	}
	return text, nil
}

// mockEmbedder implements ports.EmbeddingService for testing.
type mockEmbedder struct {
	embedFn func(text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

// mockVectorStore implements ports.VectorStore for testing.
type mockVectorStore struct {
	mu      sync.Mutex
	chunks  []entities.Chunk
	deleted []string
}

func (m *mockVectorStore) Store(_ context.Context, chunks []entities.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *mockVectorStore) Search(_ context.Context, _ []float32, topK int) ([]entities.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []entities.QueryResult
	for i, c := range m.chunks {
		if i >= topK {
			break
		}
		results = append(results, entities.QueryResult{Chunk: c, Score: 0.9})
	}
	return results, nil
}

func (m *mockVectorStore) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, docID)
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != docID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *mockVectorStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}

func chunk(id, source, content string, score float64) entities.QueryResult {
	return entities.QueryResult{
		Chunk: entities.Chunk{ID: id, DocumentID: source, Content: content, Source: entities.NewSource(source, "/data/"+source)},
		Score: score,
	}
}
