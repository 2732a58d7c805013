// Package pipeline runs one request/response cycle for an inbound user message:
// translate in, generate with the conversation history as context, translate
// out, deliver, and cache both renderings for the language toggle.
//
// A failed step aborts the turn with a fixed message to the user. Turns already
// appended to the history are kept.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relaybot/pkg/api"
	"relaybot/pkg/config"
	"relaybot/pkg/conversation"
	"relaybot/pkg/llm"
	"relaybot/pkg/replycache"
	"relaybot/pkg/toggle"
	"relaybot/pkg/translate"
	"relaybot/pkg/utils"
)

// Deps are the shared components a Pipeline drives.
type Deps struct {
	Store   *conversation.Store
	Cache   *replycache.Cache
	LLM     llm.LLMClient
	Toggles *toggle.Machine
	// Translator is nil when translation is disabled.
	Translator translate.Translator
}

// Options are the per-deployment settings.
type Options struct {
	UserLanguage       string
	GenerationLanguage string
	Messages           config.Messages
	// MessageLimit is the largest message in runes; 0 disables splitting.
	MessageLimit int
	Markdown     bool
	// TranslateTimeout bounds each translation call; 0 leaves it to ctx.
	TranslateTimeout time.Duration
	// TypingDelay is how long a turn runs before the typing signal is sent.
	TypingDelay time.Duration
}

// OptionsFromConfig derives Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, sys *config.SystemConfig) Options {
	return Options{
		UserLanguage:       cfg.Translation.UserLanguage,
		GenerationLanguage: cfg.Translation.GenerationLanguage,
		Messages:           cfg.Messages,
		MessageLimit:       sys.MessageLimit,
		Markdown:           sys.UseMarkdown,
		TranslateTimeout:   time.Duration(sys.TranslateTimeoutMs) * time.Millisecond,
		TypingDelay:        time.Duration(sys.ThinkingInitDelayMs) * time.Millisecond,
	}
}

// Result is the outcome of a successful Run.
type Result struct {
	// Text is shown first: the user-language rendering, or the raw reply when
	// translation is disabled.
	Text string
	// Alternate is the generation-language rendering, empty when untranslated.
	Alternate  string
	Translated bool
}

// Pipeline is safe for concurrent use. Turns of the same conversation are
// serialized; different conversations never wait on each other.
type Pipeline struct {
	store      *conversation.Store
	cache      *replycache.Cache
	llm        llm.LLMClient
	toggles    *toggle.Machine
	translator translate.Translator
	opts       Options

	turns *keyedMutex
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	return &Pipeline{
		store:      deps.Store,
		cache:      deps.Cache,
		llm:        deps.LLM,
		toggles:    deps.Toggles,
		translator: deps.Translator,
		opts:       opts,
		turns:      newKeyedMutex(),
	}
}

// TranslationEnabled reports whether replies are bilingual.
func (p *Pipeline) TranslationEnabled() bool {
	return p.translator != nil
}

// Run computes the reply for text in the given conversation. Errors are
// always *Failure.
func (p *Pipeline) Run(ctx context.Context, conversationID, text string) (Result, error) {
	input := text
	if p.translator != nil {
		out, err := p.translate(ctx, text, p.opts.UserLanguage, p.opts.GenerationLanguage)
		if err != nil {
			return Result{}, &Failure{Kind: TranslationUnavailable, Stage: StageTranslateIn, Err: err}
		}
		slog.DebugContext(ctx, "User message translated", "conversation", conversationID, "text", out)
		input = out
	}

	generated, err := p.generate(ctx, conversationID, input)
	if err != nil {
		return Result{}, err
	}

	if p.translator == nil {
		return Result{Text: generated}, nil
	}

	back, err := p.translate(ctx, generated, p.opts.GenerationLanguage, p.opts.UserLanguage)
	if err != nil {
		return Result{}, &Failure{Kind: TranslationUnavailable, Stage: StageTranslateOut, Err: err}
	}
	slog.DebugContext(ctx, "Reply translated", "conversation", conversationID, "text", back)

	return Result{Text: back, Alternate: generated, Translated: true}, nil
}

// generate appends the user turn, calls the completion gateway with the full
// context and appends the reply, all under the conversation's turn lock.
func (p *Pipeline) generate(ctx context.Context, conversationID, input string) (string, error) {
	unlock := p.turns.Lock(conversationID)
	defer unlock()
	release := p.store.Pin(conversationID)
	defer release()

	if err := p.store.Append(conversationID, llm.RoleUser, input); err != nil {
		return "", &Failure{Kind: GenerationUnavailable, Stage: StageGenerate, Err: err}
	}

	turns := p.store.ContextFor(conversationID)
	start := time.Now()
	reply, err := p.llm.Complete(ctx, turns)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = llm.Malformed(p.llm.Provider(), errors.New("empty reply"))
	}
	if err != nil {
		kind := GenerationUnavailable
		if llm.KindOf(err) == llm.KindMalformedResponse {
			kind = GenerationMalformed
		}
		return "", &Failure{Kind: kind, Stage: StageGenerate, Err: err}
	}
	slog.DebugContext(ctx, "Reply generated",
		"conversation", conversationID,
		"context_turns", len(turns),
		"duration", time.Since(start).String(),
	)

	if err := p.store.Append(conversationID, llm.RoleAssistant, reply); err != nil {
		return "", &Failure{Kind: GenerationUnavailable, Stage: StageGenerate, Err: err}
	}
	return reply, nil
}

func (p *Pipeline) translate(ctx context.Context, text, source, target string) (string, error) {
	if p.opts.TranslateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TranslateTimeout)
		defer cancel()
	}
	return p.translator.Translate(ctx, text, source, target)
}

// Handle runs a turn for msg and delivers the reply, or the fixed failure
// text, through r. The returned error is for logging only.
func (p *Pipeline) Handle(ctx context.Context, r api.MessageResponder, msg *api.UnifiedMessage) error {
	session := msg.Session

	typing := time.AfterFunc(p.opts.TypingDelay, func() {
		if err := r.SendSignal(session, "typing"); err != nil {
			slog.DebugContext(ctx, "Typing signal failed", "error", err)
		}
	})
	res, err := p.Run(ctx, session.ConversationID(), msg.Content)
	typing.Stop()

	if err != nil {
		slog.ErrorContext(ctx, "Turn failed", "conversation", session.ConversationID(), "error", err)
		if _, sendErr := r.SendReply(session, api.Outbound{Text: UserMessage(p.opts.Messages, err)}); sendErr != nil {
			slog.ErrorContext(ctx, "Failed to send failure notice", "error", sendErr)
		}
		return err
	}

	return p.Deliver(ctx, r, session, res)
}

// Deliver sends res. A bilingual reply that fits in one message is sent, then
// cached under the id the platform assigned within the conversation, then
// edited to carry the toggle, so a toggle can never refer to a missing cache
// entry. Untranslated and
// oversized replies are sent as plain ordered chunks without a toggle.
func (p *Pipeline) Deliver(ctx context.Context, r api.MessageResponder, session api.SessionContext, res Result) error {
	limit := p.opts.MessageLimit
	oversized := limit > 0 && (utils.RuneCount(res.Text) > limit || utils.RuneCount(res.Alternate) > limit)

	if !res.Translated || oversized {
		if res.Translated {
			slog.InfoContext(ctx, "Reply exceeds message limit, sending without toggle",
				"runes", utils.RuneCount(res.Text), "limit", limit)
		}
		return p.sendChunks(r, session, res.Text)
	}

	id, err := r.SendReply(session, api.Outbound{Text: res.Text, Markdown: p.opts.Markdown})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if err := p.cache.Put(toggle.Key(session.ConversationID(), id), res.Text, res.Alternate); err != nil {
		return fmt.Errorf("cache reply %s: %w", id, err)
	}

	edit := api.Edit{
		MessageID: id,
		Text:      res.Text,
		Control:   p.toggles.ControlFor(id, toggle.VariantB),
		Markdown:  p.opts.Markdown,
	}
	if err := r.EditReply(session, edit); err != nil {
		return fmt.Errorf("attach toggle to %s: %w", id, err)
	}
	return nil
}

func (p *Pipeline) sendChunks(r api.MessageResponder, session api.SessionContext, text string) error {
	for i, chunk := range utils.Chunks(text, p.opts.MessageLimit) {
		if _, err := r.SendReply(session, api.Outbound{Text: chunk, Markdown: p.opts.Markdown}); err != nil {
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
	}
	return nil
}
