package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/adapters/llm"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/loader"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/session"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/vectordb"
	"github.com/0xcro3dile/localrag-agent/internal/config"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/ndjson"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	var out string
	switch req.Purpose {
	case ports.PurposeRewrite:
		out = `{"intent": "factual", "search_query": "meeting", "resolved_query": "When is the meeting?"}`
	case ports.PurposeAgent:
		out = `[respond(answer="On Friday.")]`
	case ports.PurposeSummary:
		out = "Meeting notes."
	}
	if req.OnToken != nil {
		req.OnToken(out)
	}
	return out, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 1}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

type testAPI struct {
	ws  *workspace.Workspace
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWith(t, stubGenerator{}, nil)
}

// newTestAPIWith serves the API with gen as the model. wrap, when set,
// wraps the router.
func newTestAPIWith(t *testing.T, gen ports.Generator, wrap func(http.Handler) http.Handler) *testAPI {
	t.Helper()
	metrics.Register()
	ld := loader.NewMultiLoader(nil)
	ws := workspace.New(context.Background(), workspace.Deps{
		Generator:     gen,
		Embedder:      stubEmbedder{},
		Loader:        ld,
		Extractor:     loader.NewExtractor(ld, 0),
		Conversations: session.NewMemoryStore(10),
		OpenStore: func(string) (ports.VectorStore, error) {
			return vectordb.NewInMemoryStore(), nil
		},
		Agent: entities.DefaultSessionConfig(),
	})
	var h http.Handler = NewServer(ws, ndjson.NewServer(ws), config.Default().HTTP).Routes()
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		_ = ws.Close()
	})
	return &testAPI{ws: ws, srv: srv}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (a *testAPI) addReady(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("The meeting is on Friday."), 0o644))

	resp, body := a.do(t, http.MethodPost, "/api/directories", map[string]string{"dataDir": dir})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	id, _ := body["directoryId"].(string)
	require.NotEmpty(t, id)

	d, err := a.ws.Get(id)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	return id
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["directories"])
}

func TestDirectoriesAndQuery(t *testing.T) {
	api := newTestAPI(t)
	id := api.addReady(t)

	resp, body := api.do(t, http.MethodGet, "/api/directories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dirs, ok := body["directories"].([]any)
	require.True(t, ok)
	require.Len(t, dirs, 1)
	assert.Equal(t, "ready", dirs[0].(map[string]any)["state"])

	resp, body = api.do(t, http.MethodPost, "/api/query", map[string]any{"text": "when?", "directoryId": id})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "On Friday.", body["text"])

	resp, body = api.do(t, http.MethodPost, "/api/query", map[string]any{"text": "when?", "searchAll": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["results"], 1)

	resp, _ = api.do(t, http.MethodDelete, "/api/directories/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/api/directories/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPost, "/api/query", map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/query", map[string]any{"text": "hello"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/directories", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/directories", map[string]string{"dataDir": filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/directories/ghost/reindex", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryStream(t *testing.T) {
	api := newTestAPI(t)
	id := api.addReady(t)

	resp, err := api.srv.Client().Get(api.srv.URL + "/api/query/stream?q=when&directoryId=" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(raw)
	assert.Contains(t, stream, "event: token\n")
	assert.Contains(t, stream, "event: done\n")
	assert.Contains(t, stream, `"text":"On Friday."`)
	assert.NotContains(t, stream, "event: error")
}

// gatedGenerator holds the agent call until released, then streams tokens.
type gatedGenerator struct {
	stubGenerator
	started   chan struct{}
	release   chan struct{}
	finished  chan struct{}
	startOnce sync.Once
	panicked  atomic.Value
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (g *gatedGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	if req.Purpose != ports.PurposeAgent {
		return g.stubGenerator.Generate(ctx, req)
	}
	g.startOnce.Do(func() { close(g.started) })
	<-g.release
	defer close(g.finished)
	defer func() {
		if r := recover(); r != nil {
			g.panicked.Store(fmt.Sprint(r))
		}
	}()
	for range 5 {
		if req.OnToken != nil {
			req.OnToken("late ")
		}
	}
	return `[respond(answer="late")]`, nil
}

func TestQueryStream_TokensAfterClientLeftAreDropped(t *testing.T) {
	gen := newGatedGenerator()
	worker := llm.NewWorker(gen, llm.WorkerConfig{})
	t.Cleanup(worker.Close)

	returned := make(chan struct{})
	api := newTestAPIWith(t, worker, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.URL.Path == "/api/query/stream" {
				close(returned)
			}
		})
	})
	id := api.addReady(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+"/api/query/stream?q=when&directoryId="+id, nil)
	require.NoError(t, err)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("agent call never started")
	}
	cancel()
	_ = resp.Body.Close()

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after the client left")
	}

	close(gen.release)
	select {
	case <-gen.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("agent call never finished")
	}
	assert.Nil(t, gen.panicked.Load(), "token callback panicked")

	health, err := api.srv.Client().Get(api.srv.URL + "/api/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestQueryStream_RejectsEmptyQuery(t *testing.T) {
	api := newTestAPI(t)
	resp, err := api.srv.Client().Get(api.srv.URL + "/api/query/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketCarriesProtocol(t *testing.T) {
	api := newTestAPI(t)

	url := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id": 1, "method": "ping"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var reply struct {
		ID   int            `json:"id"`
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &reply))
	assert.Equal(t, 1, reply.ID)
	assert.Equal(t, ndjson.TypeResult, reply.Type)
	assert.Contains(t, reply.Data, "uptime")
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/api/health", nil)

	resp, err := api.srv.Client().Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "localrag_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(entities.ErrModelUnavailable))
	assert.Equal(t, http.StatusForbidden, statusFor(workspace.ErrSensitiveDirectory))
	assert.Equal(t, http.StatusConflict, statusFor(workspace.ErrNotReady))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
