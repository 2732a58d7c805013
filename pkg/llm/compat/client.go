// Package compat talks to OpenAI-compatible chat endpoints that do not always
// honour the schema: some return a structured object, some a JSON string that
// encodes it, some plain text. Every body goes through llm.NormalizeReply.
package compat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"relaybot/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 4 << 20

// Client posts chat requests to <baseURL>/chat/completions.
type Client struct {
	http         *http.Client
	baseURL      string
	apiKey       string
	model        string
	options      map[string]any
	debugEnabled bool
}

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []llm.Turn `json:"messages"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   *int       `json:"max_tokens,omitempty"`
	Stream      bool       `json:"stream"`
}

// NewClient creates a client; httpClient may be nil.
func NewClient(baseURL, apiKey, model string, options map[string]any, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = llm.NewHTTPClient()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		options: options,
	}
}

func (c *Client) Provider() string { return "compat" }

func (c *Client) SetDebug(enabled bool) { c.debugEnabled = enabled }

// Complete implements llm.LLMClient.
func (c *Client) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	body := chatRequest{Model: c.model, Messages: turns}
	if t, ok := c.options["temperature"].(float64); ok {
		body.Temperature = &t
	}
	if m, ok := c.options["max_tokens"].(float64); ok {
		n := int(m)
		body.MaxTokens = &n
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &llm.Error{Kind: llm.KindUnknown, Provider: c.Provider(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &llm.Error{Kind: llm.KindUnknown, Provider: c.Provider(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", llm.Unavailable(c.Provider(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", llm.Unavailable(c.Provider(), fmt.Errorf("read body: %w", err))
	}

	debugger := llm.NewResponseDebugger(ctx, c.Provider(), c.debugEnabled)
	defer debugger.Close()
	debugger.Write(raw)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", llm.Unavailable(c.Provider(), statusError(resp.StatusCode, raw))
	case resp.StatusCode >= 300:
		return "", &llm.Error{Kind: llm.KindUnknown, Provider: c.Provider(), Err: statusError(resp.StatusCode, raw)}
	}

	return llm.NormalizeReply(c.Provider(), raw)
}

func statusError(code int, raw []byte) error {
	snippet := strings.TrimSpace(string(raw))
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return fmt.Errorf("status %d: %s", code, snippet)
}

// IsTransientError implements the llm.LLMClient interface
func (c *Client) IsTransientError(err error) bool {
	return llm.KindOf(err) == llm.KindUnavailable
}
