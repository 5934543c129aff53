package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

func chatRequest() ports.GenerateRequest {
	return ports.GenerateRequest{
		System:   "be brief",
		Messages: []entities.ConversationTurn{{Role: entities.RoleUser, Text: "Hi"}},
		Sampling: ports.Sampling{MaxTokens: 64, Temperature: 0.1},
	}
}

func TestOllamaGenerator_Generate(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "Hello there!"},
			"done":    true,
		})
	}))
	defer server.Close()

	resp, err := NewOllamaGenerator(server.URL, "test-model").Generate(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", resp)

	assert.Equal(t, "test-model", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 64, got.Options.NumPredict)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ollamaMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, ollamaMessage{Role: "user", Content: "Hi"}, got.Messages[1])
}

func TestOllamaGenerator_Streams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"Hello"},"done":false}` + "\n"))
		_, _ = w.Write([]byte("not json\n"))
		_, _ = w.Write([]byte(`{"message":{"content":" world"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":"!"},"done":true}` + "\n"))
	}))
	defer server.Close()

	var tokens []string
	req := chatRequest()
	req.OnToken = func(s string) { tokens = append(tokens, s) }

	resp, err := NewOllamaGenerator(server.URL, "test").Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", resp)
	assert.Equal(t, []string{"Hello", " world", "!"}, tokens)
}

func TestOllamaGenerator_Unavailable(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model not found"}`, status)
		}))
		_, err := NewOllamaGenerator(server.URL, "test").Generate(context.Background(), chatRequest())
		assert.ErrorIs(t, err, entities.ErrModelUnavailable, status)
		server.Close()
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	_, err := NewOllamaGenerator(server.URL, "test").Generate(context.Background(), chatRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, entities.ErrModelUnavailable)
}

func TestOllamaGenerator_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewOllamaGenerator(url, "test").Generate(context.Background(), chatRequest())
	assert.ErrorIs(t, err, entities.ErrModelUnavailable)
}

func TestOllamaGenerator_DefaultValues(t *testing.T) {
	g := NewOllamaGenerator("", "")
	assert.Equal(t, "http://localhost:11434", g.baseURL)
	assert.Equal(t, "llama3.2:1b", g.model)
}
