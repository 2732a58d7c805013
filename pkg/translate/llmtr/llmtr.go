// Package llmtr uses the completion gateway as a translation engine.
package llmtr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
	"relaybot/pkg/translate"
)

const promptTemplate = `You are a translation engine.
Translate the user's message from %s to %s.
Return only the translation. Do not add notes, quotes, or explanations.
Keep line breaks, lists, and markdown markers exactly where they are.`

// Translator prompts an LLMClient with a fixed translation instruction.
type Translator struct {
	client llm.LLMClient
	names  func(code string) string
}

// New creates a Translator; names maps language codes to display names and may be nil.
func New(client llm.LLMClient, names func(code string) string) *Translator {
	if names == nil {
		names = func(code string) string { return code }
	}
	return &Translator{client: client, names: names}
}

func (t *Translator) Backend() string { return "llm" }

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	turns := []llm.Turn{
		llm.NewSystemTurn(fmt.Sprintf(promptTemplate, t.names(source), t.names(target))),
		llm.NewUserTurn(text),
	}

	out, err := t.client.Complete(ctx, turns)
	if err != nil {
		if llm.KindOf(err) == llm.KindUnavailable {
			return "", translate.Unavailable(t.Backend(), err)
		}
		return "", translate.Unknown(t.Backend(), err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", translate.Unknown(t.Backend(), errors.New("empty translation"))
	}
	return out, nil
}

// Factory builds the llm backend on top of the shared completion client.
type Factory struct{}

// Create implements translate.BackendFactory
func (f *Factory) Create(cfg config.TranslationConfig, deps translate.Deps) (translate.Translator, error) {
	if deps.LLM == nil {
		return nil, errors.New("llm translation backend requires a completion client")
	}
	return New(deps.LLM, cfg.LanguageName), nil
}

func init() {
	translate.RegisterBackend("llm", &Factory{})
}
