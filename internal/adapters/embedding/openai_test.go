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

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-model", req.Model)

		// reversed order on purpose
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "embed-model"})
	out, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)

	one, err := e.Embed(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, one)
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"model is loading"}`))
	}))
	defer server.Close()

	_, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: server.URL, Model: "m"}).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrModelUnavailable)
}

func TestExtractDetail(t *testing.T) {
	assert.Equal(t, "bad input", extractDetail([]byte(`{"detail":"bad input"}`)))
	assert.Empty(t, extractDetail([]byte(`not json`)))
}
