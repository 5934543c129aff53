// Package llm provides text-generation adapters and the model worker that
// serializes access to them.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2:1b"
)

// OllamaGenerator implements ports.Generator with the Ollama chat API.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaGenerator creates an Ollama generator. Timeouts are left to the
// caller's context.
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Generate sends the conversation to /api/chat. When req.OnToken is set the
// reply is streamed and each fragment is passed to it.
func (a *OllamaGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	body := ollamaChatRequest{
		Model:    a.model,
		Messages: toOllamaMessages(req),
		Stream:   req.OnToken != nil,
		Options: ollamaOptions{
			Temperature: req.Sampling.Temperature,
			NumPredict:  req.Sampling.MaxTokens,
		},
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("calling Ollama: %v: %w", err, entities.ErrModelUnavailable)
	}
	defer resp.Body.Close()

	if err := checkStatus("Ollama", resp); err != nil {
		return "", err
	}

	if !body.Stream {
		var out ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}
		if out.Error != "" {
			return "", fmt.Errorf("ollama: %s", out.Error)
		}
		return out.Message.Content, nil
	}
	return readOllamaStream(resp.Body, req.OnToken)
}

// readOllamaStream collects a newline-delimited JSON reply.
func readOllamaStream(r io.Reader, onToken func(string)) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part ollamaChatResponse
		if err := json.Unmarshal(line, &part); err != nil {
			continue
		}
		if part.Error != "" {
			return sb.String(), fmt.Errorf("ollama: %s", part.Error)
		}
		if part.Message.Content != "" {
			sb.WriteString(part.Message.Content)
			onToken(part.Message.Content)
		}
		if part.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("reading stream: %w", err)
	}
	return sb.String(), nil
}

func toOllamaMessages(req ports.GenerateRequest) []ollamaMessage {
	msgs := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, ollamaMessage{Role: string(entities.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Text})
	}
	return msgs
}

// checkStatus maps HTTP failures of a model server to errors. A missing
// model (404) and server errors mean the model is unavailable.
func checkStatus(server string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s returned status %d: %s: %w", server, resp.StatusCode, detail, entities.ErrModelUnavailable)
	}
	return fmt.Errorf("%s returned status %d: %s", server, resp.StatusCode, detail)
}
