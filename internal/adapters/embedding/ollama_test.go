package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

func ollamaServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*calls++
		out := make([][]float32, len(req.Input))
		for i := range req.Input {
			out[i] = []float32{float32(len(req.Input[i])), 0.5}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
}

func TestOllamaAdapter_Embed(t *testing.T) {
	calls := 0
	server := ollamaServer(t, &calls)
	defer server.Close()

	emb, err := NewOllamaAdapter(server.URL, "test-model").Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0.5}, emb)
}

func TestOllamaAdapter_EmbedBatch(t *testing.T) {
	calls := 0
	server := ollamaServer(t, &calls)
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model")
	adapter.batchSize = 2
	results, err := adapter.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, float32(3), results[2][0])
	assert.Equal(t, 2, calls)
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewOllamaAdapter(server.URL, "test").Embed(context.Background(), "test")
	assert.ErrorIs(t, err, entities.ErrModelUnavailable)
}

func TestOllamaAdapter_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	_, err := NewOllamaAdapter(server.URL, "test").Embed(context.Background(), "test")
	require.Error(t, err)
}

func TestOllamaAdapter_DefaultValues(t *testing.T) {
	adapter := NewOllamaAdapter("", "")
	assert.Equal(t, "http://localhost:11434", adapter.baseURL)
	assert.Equal(t, "nomic-embed-text", adapter.model)
}
