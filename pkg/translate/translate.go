// Package translate is the translation gateway: a single Translate operation
// over interchangeable backends, with failures reported as *Error.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
)

// Translator 翻譯後端介面
type Translator interface {
	// Translate converts text from the source language to the target language.
	// Language codes are ISO 639-1 (e.g. "en", "am").
	Translate(ctx context.Context, text, source, target string) (string, error)

	// Backend 回傳後端名稱 (google, llm)
	Backend() string
}

// ErrorKind classifies translation failures.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindUnknown     ErrorKind = "unknown"
)

// Error is returned by every Translator implementation.
type Error struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: translation %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: translation %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable wraps err as a KindUnavailable failure.
func Unavailable(backend string, err error) *Error {
	return &Error{Kind: KindUnavailable, Backend: backend, Err: err}
}

// Unknown wraps err as a KindUnknown failure.
func Unknown(backend string, err error) *Error {
	return &Error{Kind: KindUnknown, Backend: backend, Err: err}
}

// KindOf extracts the failure kind of err; context expiry counts as unavailable.
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

// Deps 建立後端時可用的共享資源
type Deps struct {
	LLM    llm.LLMClient
	System *config.SystemConfig
}

// BackendFactory 定義建立翻譯後端的工廠介面
type BackendFactory interface {
	Create(cfg config.TranslationConfig, deps Deps) (Translator, error)
}

var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend 註冊一個翻譯後端
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// GetBackendFactory 取得指定名稱的後端
func GetBackendFactory(name string) (BackendFactory, bool) {
	f, ok := backendRegistry[name]
	return f, ok
}

// NewFromConfig 根據設定建立翻譯器；未啟用翻譯時回傳 nil
func NewFromConfig(cfg config.TranslationConfig, deps Deps) (Translator, error) {
	if !cfg.Enabled {
		slog.Info("Translation disabled")
		return nil, nil
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	factory, ok := GetBackendFactory(name)
	if !ok {
		return nil, fmt.Errorf("unknown translation backend: %q", cfg.Backend)
	}

	t, err := factory.Create(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation backend %s: %w", name, err)
	}

	slog.Info("Translation enabled",
		"backend", t.Backend(),
		"user_language", cfg.UserLanguage,
		"generation_language", cfg.GenerationLanguage,
	)
	return t, nil
}
