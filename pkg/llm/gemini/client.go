package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug implements the llm.LLMClient interface
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(ctx context.Context, apiKey string, model string, options map[string]any) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// Complete implements llm.LLMClient.Complete
func (g *GeminiClient) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	contents, systemInstruction := convertTurns(turns)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	if t, ok := g.options["temperature"].(float64); ok {
		cfg.Temperature = genai.Ptr(float32(t))
	}
	if p, ok := g.options["top_p"].(float64); ok {
		cfg.TopP = genai.Ptr(float32(p))
	}
	if m, ok := g.options["max_tokens"].(float64); ok {
		cfg.MaxOutputTokens = int32(m)
	}

	slog.DebugContext(ctx, "Gemini request", "model", g.model, "turns", len(turns))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", llm.Unavailable(g.Provider(), err)
	}

	debugger := llm.NewResponseDebugger(ctx, g.Provider(), g.debugEnabled)
	defer debugger.Close()
	if raw, err := json.Marshal(resp); err == nil {
		debugger.Write(raw)
	}

	if u := resp.UsageMetadata; u != nil {
		usage := &llm.LLMUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		if len(resp.Candidates) > 0 {
			usage.StopReason = string(resp.Candidates[0].FinishReason)
		}
		llm.LogUsage(ctx, g.Provider(), g.model, usage)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", llm.Malformed(g.Provider(), fmt.Errorf("empty candidate text (%s)", reason))
	}
	return text, nil
}

// convertTurns converts turns to GenAI format; the system turn becomes SystemInstruction.
func convertTurns(turns []llm.Turn) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, t := range turns {
		if t.Content == "" {
			continue // 略過空文本
		}
		switch t.Role {
		case llm.RoleSystem:
			systemInstruction = genai.NewContentFromText(t.Content, genai.RoleUser)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}

	return contents, systemInstruction
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. Google API common 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 2. 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 3. 500 Internal Error (Occasional Google Gemini crashes)
	return strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error")
}
