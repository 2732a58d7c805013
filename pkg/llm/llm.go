package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// contextKey 避免與其他套件的 context key 衝突
type contextKey string

// DebugDirContextKey carries the per-turn debug id used to group logs and raw dumps.
const DebugDirContextKey contextKey = "llm_debug_dir"

// Role 對話角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn 表示一則帶角色的對話訊息，建立後不可變更
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemTurn 建立系統訊息
func NewSystemTurn(text string) Turn { return Turn{Role: RoleSystem, Content: text} }

// NewUserTurn 建立使用者訊息
func NewUserTurn(text string) Turn { return Turn{Role: RoleUser, Content: text} }

// NewAssistantTurn 建立助理訊息
func NewAssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Content: text} }

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(ctx context.Context, provider, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "Completion usage",
		"provider", provider,
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"stop_reason", usage.StopReason,
	)
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// Complete 送出完整的對話脈絡（第一則必為 system），回傳純文字回覆
	// 失敗時回傳 *Error，Kind 為 KindUnavailable / KindMalformedResponse / KindUnknown
	Complete(ctx context.Context, turns []Turn) (string, error)

	// Provider 回傳供應商名稱 (openai, gemini, ollama, compat)
	Provider() string

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// ErrorKind classifies completion failures at the gateway boundary.
type ErrorKind string

const (
	KindUnavailable       ErrorKind = "unavailable"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnknown           ErrorKind = "unknown"
)

// Error is the only error type returned by LLMClient implementations.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: completion %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: completion %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable wraps err as a KindUnavailable failure.
func Unavailable(provider string, err error) *Error {
	return &Error{Kind: KindUnavailable, Provider: provider, Err: err}
}

// Malformed wraps err as a KindMalformedResponse failure.
func Malformed(provider string, err error) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: provider, Err: err}
}

// KindOf extracts the failure kind of err. Errors that did not come through a
// gateway are reported as KindUnknown; context expiry counts as unavailable.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindUnknown
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Provider() string { return "fallback" }

func (f *FallbackClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", fmt.Sprintf("%d/%d", retry, maxRetries))
				select {
				case <-ctx.Done():
					return "", Unavailable(f.Provider(), ctx.Err())
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			text, err := client.Complete(ctx, turns)
			if err == nil {
				return text, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			slog.ErrorContext(ctx, "Provider failed", "index", i+1, "error", err)
			break
		}
	}

	// 保留最後一個錯誤的分類，讓上層能區分 unavailable 與 malformed
	kind := KindOf(lastErr)
	if kind == "" {
		kind = KindUnknown
	}
	return "", &Error{Kind: kind, Provider: f.Provider(), Err: fmt.Errorf("all fallback providers failed: %w", lastErr)}
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 的錯誤代表所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
