package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// OpenAIConfig holds the settings of an OpenAI-compatible server such as
// llama.cpp, LM Studio or vLLM.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator implements ports.Generator over the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible server.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Generate runs one chat completion, streaming when req.OnToken is set.
func (g *OpenAIGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	creq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(req),
		MaxTokens:   req.Sampling.MaxTokens,
		Temperature: float32(req.Sampling.Temperature),
	}
	if creq.Temperature == 0 {
		// zero is dropped by omitempty and the server default applies
		creq.Temperature = math.SmallestNonzeroFloat32
	}

	if req.OnToken == nil {
		resp, err := g.client.CreateChatCompletion(ctx, creq)
		if err != nil {
			return "", g.apiError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty completion response")
		}
		return resp.Choices[0].Message.Content, nil
	}

	creq.Stream = true
	stream, err := g.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return "", g.apiError(ctx, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		part, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), g.apiError(ctx, err)
		}
		if len(part.Choices) == 0 {
			continue
		}
		if tok := part.Choices[0].Delta.Content; tok != "" {
			sb.WriteString(tok)
			req.OnToken(tok)
		}
	}
}

// toOpenAIMessages maps turns to chat messages. Tool results travel as user
// messages because they do not answer a structured tool call.
func toOpenAIMessages(req ports.GenerateRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case entities.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text})
		case entities.RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Text})
		case entities.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "Tool result: " + m.Text})
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		}
	}
	return msgs
}

// apiError classifies a client error. Transport failures, a missing model
// and server errors wrap entities.ErrModelUnavailable.
func (g *OpenAIGenerator) apiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := 0
	detail := err.Error()
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if len(reqErr.Body) > 0 {
			detail = string(reqErr.Body)
		}
	}

	if status == 0 || status == http.StatusNotFound || status >= http.StatusInternalServerError {
		return fmt.Errorf("completion API error %d: %s: %w", status, detail, entities.ErrModelUnavailable)
	}
	return fmt.Errorf("completion API error %d: %s", status, detail)
}
