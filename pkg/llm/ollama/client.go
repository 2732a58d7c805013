package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"relaybot/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug implements the llm.LLMClient interface
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	var client *api.Client

	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		// 使用自訂 Transport 修正 Ollama 回傳的非法 JSON escape
		client = api.NewClient(u, llm.NewHTTPClient())
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

// Complete implements llm.LLMClient; the request is sent non-streaming so the
// callback fires exactly once with the whole reply.
func (o *OllamaClient) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	streamVal := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: convertTurns(turns),
		Options:  o.options,
		Stream:   &streamVal,
	}

	debugger := llm.NewResponseDebugger(ctx, o.Provider(), o.debugEnabled)
	defer debugger.Close()

	var content strings.Builder
	var final *api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if raw, err := json.Marshal(resp); err == nil {
			debugger.Write(raw)
		}
		content.WriteString(resp.Message.Content)
		if resp.Done {
			r := resp
			final = &r
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Chat error", "provider", "ollama", "model", o.model, "error", err)
		var se api.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
			return "", &llm.Error{Kind: llm.KindUnknown, Provider: o.Provider(), Err: err}
		}
		return "", llm.Unavailable(o.Provider(), err)
	}

	if final != nil {
		if final.DoneReason == "length" {
			slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
		}
		llm.LogUsage(ctx, o.Provider(), o.model, &llm.LLMUsage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
			StopReason:       final.DoneReason,
		})
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return "", llm.Malformed(o.Provider(), errors.New("empty message content"))
	}
	return text, nil
}

// convertTurns converts turns to Ollama API format
func convertTurns(turns []llm.Turn) []api.Message {
	msgs := make([]api.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, api.Message{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	return msgs
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	// 1. Connection related errors (Connection refused, reset)
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// 2. High load
	return strings.Contains(strings.ToLower(errMsg), "overloaded")
}
