package parser

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPythonPDFParser_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		assert.Equal(t, "test.pdf", r.Header.Get("X-Filename"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake pdf", string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "Hello from PDF", "pages": 1})
	}))
	defer server.Close()

	text, err := NewPythonPDFParser(server.URL).Parse(context.Background(), []byte("fake pdf"), "/docs/test.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Hello from PDF", text)
}

func TestPythonPDFParser_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "parsing failed", "text": ""})
	}))
	defer server.Close()

	_, err := NewPythonPDFParser(server.URL).Parse(context.Background(), []byte("bad"), "test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing failed")
}

func TestPythonPDFParser_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewPythonPDFParser(server.URL).Parse(context.Background(), []byte("x"), "x.pdf")
	assert.Error(t, err)
}

func TestPythonPDFParser_SupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"pdf"}, NewPythonPDFParser("").SupportedFormats())
}

func TestPythonPDFParser_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
	}))
	p := NewPythonPDFParser(server.URL)
	assert.True(t, p.IsServiceHealthy(context.Background()))
	require.NoError(t, p.waitHealthy(context.Background(), time.Second))

	server.Close()
	assert.False(t, p.IsServiceHealthy(context.Background()))
	assert.Error(t, p.waitHealthy(context.Background(), 300*time.Millisecond))
}

func TestPythonPDFParser_StartServiceMissingScript(t *testing.T) {
	_, err := NewPythonPDFParser("").StartService(context.Background(), t.TempDir())
	assert.Error(t, err)
}
