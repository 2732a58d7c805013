package openailm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"relaybot/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client is a wrapper around the official OpenAI Go SDK (Chat Completions).
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// 重試由 FallbackClient 統一處理
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	return strings.Contains(msg, "overloaded")
}

// Complete implements llm.LLMClient.
func (c *Client) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertTurns(turns),
	}

	// Handle unified "temperature" option (optional)
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}

	// Handle unified "top_p" option (optional)
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = openai.Float(p)
	}

	// Handle unified "max_tokens" option (mapped to max_completion_tokens for newer models)
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxCompletionTokens = openai.Int(int64(maxTok))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.classify(err)
	}

	debugger := llm.NewResponseDebugger(ctx, c.provider, c.debugEnabled)
	defer debugger.Close()
	debugger.Write([]byte(resp.RawJSON()))

	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		llm.LogUsage(ctx, c.provider, c.model, &llm.LLMUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			StopReason:       string(resp.Choices[0].FinishReason),
		})
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	// 部分相容端點的回應不符合 SDK 結構，退回原始 body 再解析一次
	return llm.NormalizeReply(c.provider, []byte(resp.RawJSON()))
}

// classify maps SDK errors onto gateway failure kinds.
func (c *Client) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return llm.Unavailable(c.provider, err)
		}
		return &llm.Error{Kind: llm.KindUnknown, Provider: c.provider, Err: fmt.Errorf("status %d: %w", apiErr.StatusCode, err)}
	}
	return llm.Unavailable(c.provider, err)
}

func convertTurns(turns []llm.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case llm.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case llm.RoleUser:
			msgs = append(msgs, openai.UserMessage(t.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		}
	}
	return msgs
}
