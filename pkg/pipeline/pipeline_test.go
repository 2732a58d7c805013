package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/pkg/api"
	"relaybot/pkg/config"
	"relaybot/pkg/conversation"
	"relaybot/pkg/llm"
	"relaybot/pkg/replycache"
	"relaybot/pkg/toggle"
	"relaybot/pkg/translate"
)

type fakeResponder struct {
	mu      sync.Mutex
	fixedID string // every send gets this id when set
	nextID  int
	sent    []api.Outbound
	ids     []string
	edits   []api.Edit
	signals []string
}

func (f *fakeResponder) SendReply(session api.SessionContext, msg api.Outbound) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strconv.Itoa(100 + f.nextID)
	if f.fixedID != "" {
		id = f.fixedID
	}
	f.sent = append(f.sent, msg)
	f.ids = append(f.ids, id)
	return id, nil
}

func (f *fakeResponder) EditReply(session api.SessionContext, edit api.Edit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return nil
}

func (f *fakeResponder) SendSignal(session api.SessionContext, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

type fakeLLM struct {
	mu    sync.Mutex
	calls [][]llm.Turn
	reply func(turns []llm.Turn) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, turns)
	f.mu.Unlock()
	return f.reply(turns)
}

func (f *fakeLLM) Provider() string { return "fake" }

func (f *fakeLLM) IsTransientError(err error) bool { return false }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replyWith(text string) func([]llm.Turn) (string, error) {
	return func([]llm.Turn) (string, error) { return text, nil }
}

// dictTranslator translates known phrases and fails on the configured target.
type dictTranslator struct {
	dict     map[string]string
	failInto string
}

func (d *dictTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if target == d.failInto {
		return "", translate.Unavailable("dict", errors.New("down"))
	}
	if out, ok := d.dict[text]; ok {
		return out, nil
	}
	return "[" + target + "] " + text, nil
}

func (d *dictTranslator) Backend() string { return "dict" }

type fixture struct {
	p     *Pipeline
	store *conversation.Store
	cache *replycache.Cache
	llm   *fakeLLM
	resp  *fakeResponder
}

func newFixture(client *fakeLLM, tr translate.Translator, limit int) *fixture {
	store := conversation.NewStore("system prompt", conversation.Options{})
	cache := replycache.New(0)
	machine := toggle.NewMachine(cache,
		toggle.NewLabels("Translate to %s", "Amharic", "English"),
		toggle.Texts{NotFound: "not found", Invalid: "invalid"},
	)
	deps := Deps{Store: store, Cache: cache, LLM: client, Toggles: machine}
	if tr != nil {
		deps.Translator = tr
	}
	p := New(deps, Options{
		UserLanguage:       "am",
		GenerationLanguage: "en",
		Messages:           config.DefaultMessages("en"),
		MessageLimit:       limit,
		TypingDelay:        time.Hour,
	})
	return &fixture{p: p, store: store, cache: cache, llm: client, resp: &fakeResponder{}}
}

func message(chatID, text string) *api.UnifiedMessage {
	return &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "telegram", ChatID: chatID, UserID: chatID, Username: "Abebe"},
		Content: text,
	}
}

func TestHandleBilingualTurn(t *testing.T) {
	tr := &dictTranslator{dict: map[string]string{
		"ሰላም":      "Hello",
		"Hi there": "ሰላም ነው",
	}}
	f := newFixture(&fakeLLM{reply: replyWith("Hi there")}, tr, 4000)

	if err := f.p.Handle(context.Background(), f.resp, message("42", "ሰላም")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	history := f.store.ContextFor("telegram:42")
	if len(history) != 3 || history[1] != llm.NewUserTurn("Hello") || history[2] != llm.NewAssistantTurn("Hi there") {
		t.Fatalf("unexpected history %+v", history)
	}

	if len(f.resp.sent) != 1 || f.resp.sent[0].Text != "ሰላም ነው" || f.resp.sent[0].Control != nil {
		t.Fatalf("unexpected sends %+v", f.resp.sent)
	}
	id := f.resp.ids[0]

	reply, err := f.cache.Get(toggle.Key("telegram:42", id))
	if err != nil {
		t.Fatalf("no cache entry for %s: %v", id, err)
	}
	if reply.A != "ሰላም ነው" || reply.B != "Hi there" {
		t.Fatalf("cached %+v", reply)
	}

	if len(f.resp.edits) != 1 {
		t.Fatalf("expected one edit attaching the toggle, got %d", len(f.resp.edits))
	}
	edit := f.resp.edits[0]
	if edit.MessageID != id || edit.Control == nil || edit.Control.Payload != toggle.Encode(id, toggle.VariantB) {
		t.Fatalf("unexpected edit %+v", edit)
	}
	if edit.Control.Label != "Translate to English" {
		t.Fatalf("label = %q", edit.Control.Label)
	}
}

func TestSameMessageIDInTwoChats(t *testing.T) {
	tr := &dictTranslator{dict: map[string]string{}}
	replies := map[string]string{"[en] from A": "answer A", "[en] from B": "answer B"}
	client := &fakeLLM{reply: func(turns []llm.Turn) (string, error) {
		return replies[turns[len(turns)-1].Content], nil
	}}
	f := newFixture(client, tr, 4000)
	f.resp.fixedID = "1"

	if err := f.p.Handle(context.Background(), f.resp, message("100", "from A")); err != nil {
		t.Fatalf("chat 100: %v", err)
	}
	if err := f.p.Handle(context.Background(), f.resp, message("200", "from B")); err != nil {
		t.Fatalf("chat 200: %v", err)
	}

	if len(f.resp.edits) != 2 || f.cache.Len() != 2 {
		t.Fatalf("both replies need a toggle: edits=%d cached=%d", len(f.resp.edits), f.cache.Len())
	}
	for chatID, want := range map[string]string{"100": "answer A", "200": "answer B"} {
		reply, err := f.cache.Get(toggle.Key("telegram:"+chatID, "1"))
		if err != nil || reply.B != want {
			t.Fatalf("chat %s cached %+v (%v), want B=%q", chatID, reply, err, want)
		}
	}
}

func TestHandleWithoutTranslation(t *testing.T) {
	f := newFixture(&fakeLLM{reply: replyWith("Hi there")}, nil, 4000)

	if err := f.p.Handle(context.Background(), f.resp, message("42", "Hello")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	history := f.store.ContextFor("telegram:42")
	if len(history) != 3 || history[1].Content != "Hello" || history[2].Content != "Hi there" {
		t.Fatalf("unexpected history %+v", history)
	}
	if len(f.resp.sent) != 1 || f.resp.sent[0].Text != "Hi there" {
		t.Fatalf("unexpected sends %+v", f.resp.sent)
	}
	if len(f.resp.edits) != 0 || f.cache.Len() != 0 {
		t.Fatalf("untranslated replies must not be cached or toggled")
	}
}

func TestContextGrowsByPairs(t *testing.T) {
	f := newFixture(&fakeLLM{reply: func(turns []llm.Turn) (string, error) {
		return "re:" + turns[len(turns)-1].Content, nil
	}}, nil, 0)

	const runs = 4
	for i := 0; i < runs; i++ {
		if _, err := f.p.Run(context.Background(), "c", fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	for i, turns := range f.llm.calls {
		if turns[0].Role != llm.RoleSystem || len(turns) != 2*i+2 {
			t.Fatalf("call %d saw %d turns", i, len(turns))
		}
	}
	if got := len(f.store.ContextFor("c")); got != 2*runs+1 {
		t.Fatalf("context has %d turns, want %d", got, 2*runs+1)
	}
}

func TestHandleFailures(t *testing.T) {
	msgs := config.DefaultMessages("en")

	cases := []struct {
		name        string
		llmErr      error
		failInto    string
		wantKind    FailureKind
		wantStage   Stage
		wantText    string
		wantTurns   int
		wantLLMCall bool
	}{
		{
			name:      "translate in",
			failInto:  "en",
			wantKind:  TranslationUnavailable,
			wantStage: StageTranslateIn,
			wantText:  msgs.TranslateInFailed,
			wantTurns: 0,
		},
		{
			name:        "generation unavailable",
			llmErr:      llm.Unavailable("fake", errors.New("503")),
			wantKind:    GenerationUnavailable,
			wantStage:   StageGenerate,
			wantText:    msgs.GenerationFailed,
			wantTurns:   1,
			wantLLMCall: true,
		},
		{
			name:        "generation malformed",
			llmErr:      llm.Malformed("fake", errors.New("shape")),
			wantKind:    GenerationMalformed,
			wantStage:   StageGenerate,
			wantText:    msgs.GenerationFailed,
			wantTurns:   1,
			wantLLMCall: true,
		},
		{
			name:        "translate out",
			failInto:    "am",
			wantKind:    TranslationUnavailable,
			wantStage:   StageTranslateOut,
			wantText:    msgs.TranslateOutFailed,
			wantTurns:   2,
			wantLLMCall: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeLLM{reply: func([]llm.Turn) (string, error) {
				if tc.llmErr != nil {
					return "", tc.llmErr
				}
				return "Hi there", nil
			}}
			f := newFixture(client, &dictTranslator{failInto: tc.failInto}, 4000)

			err := f.p.Handle(context.Background(), f.resp, message("7", "ሰላም"))

			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("error = %v, want *Failure", err)
			}
			if failure.Kind != tc.wantKind || failure.Stage != tc.wantStage {
				t.Fatalf("got %s at %s", failure.Kind, failure.Stage)
			}
			if len(f.resp.sent) != 1 || f.resp.sent[0].Text != tc.wantText {
				t.Fatalf("unexpected notice %+v", f.resp.sent)
			}
			if got := f.store.Len("telegram:7"); got != tc.wantTurns {
				t.Fatalf("stored %d turns, want %d", got, tc.wantTurns)
			}
			if (client.callCount() > 0) != tc.wantLLMCall {
				t.Fatalf("llm called %d times", client.callCount())
			}
			if f.cache.Len() != 0 || len(f.resp.edits) != 0 {
				t.Fatalf("failed turn must not cache or toggle")
			}
		})
	}
}

func TestEmptyReplyIsMalformed(t *testing.T) {
	f := newFixture(&fakeLLM{reply: replyWith("  ")}, nil, 0)
	_, err := f.p.Run(context.Background(), "c", "Hello")
	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != GenerationMalformed {
		t.Fatalf("error = %v", err)
	}
}

func TestOversizedReplyIsChunkedWithoutToggle(t *testing.T) {
	long := strings.Repeat("word ", 10)
	f := newFixture(&fakeLLM{reply: replyWith(long)}, &dictTranslator{}, 12)

	if err := f.p.Handle(context.Background(), f.resp, message("9", "hi")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(f.resp.sent) < 2 {
		t.Fatalf("expected several chunks, got %d", len(f.resp.sent))
	}
	var joined strings.Builder
	for _, m := range f.resp.sent {
		if len([]rune(m.Text)) > 12 {
			t.Fatalf("chunk over limit: %q", m.Text)
		}
		if m.Control != nil {
			t.Fatalf("chunk carries a control")
		}
		joined.WriteString(m.Text)
	}
	if !strings.HasPrefix(joined.String(), "[am]") {
		t.Fatalf("chunks out of order: %q", joined.String())
	}
	if len(f.resp.edits) != 0 || f.cache.Len() != 0 {
		t.Fatalf("chunked output must not be cached or toggled")
	}
}

func TestConcurrentTurnsInOneConversation(t *testing.T) {
	client := &fakeLLM{reply: func(turns []llm.Turn) (string, error) {
		last := turns[len(turns)-1]
		if last.Role != llm.RoleUser {
			return "", fmt.Errorf("context ends with %s", last.Role)
		}
		time.Sleep(10 * time.Millisecond)
		return "re:" + last.Content, nil
	}}
	f := newFixture(client, nil, 0)

	var wg sync.WaitGroup
	for _, text := range []string{"one", "two"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			if _, err := f.p.Run(context.Background(), "42", text); err != nil {
				t.Errorf("Run(%s): %v", text, err)
			}
		}(text)
	}
	wg.Wait()

	history := f.store.ContextFor("42")[1:]
	if len(history) != 4 {
		t.Fatalf("history has %d turns: %+v", len(history), history)
	}
	for i := 0; i < len(history); i += 2 {
		user, reply := history[i], history[i+1]
		if user.Role != llm.RoleUser || reply.Role != llm.RoleAssistant || reply.Content != "re:"+user.Content {
			t.Fatalf("pair %d interleaved: %+v %+v", i/2, user, reply)
		}
	}
	if f.p.turns.size() != 0 {
		t.Fatalf("turn locks not released")
	}
}

func TestUserMessage(t *testing.T) {
	msgs := config.DefaultMessages("en")
	if got := UserMessage(msgs, errors.New("boom")); got != msgs.GenericError {
		t.Fatalf("plain error mapped to %q", got)
	}
	if got := UserMessage(msgs, &Failure{Stage: StageGenerate}); got != msgs.GenerationFailed {
		t.Fatalf("generation failure mapped to %q", got)
	}
}

func TestOtherConversationCannotEvictTurnInProgress(t *testing.T) {
	store := conversation.NewStore("sys", conversation.Options{MaxConversations: 1})
	cache := replycache.New(0)
	var contexts [][]llm.Turn
	client := &fakeLLM{reply: func(turns []llm.Turn) (string, error) {
		// 另一個對話在生成期間寫入，超過容量
		store.Append("99", llm.RoleUser, "meanwhile")
		contexts = append(contexts, turns)
		return "re:" + turns[len(turns)-1].Content, nil
	}}
	p := New(Deps{
		Store:   store,
		Cache:   cache,
		LLM:     client,
		Toggles: toggle.NewMachine(cache, toggle.Labels{}, toggle.Texts{}),
	}, Options{})

	for _, text := range []string{"Hello", "Again"} {
		if _, err := p.Run(context.Background(), "42", text); err != nil {
			t.Fatalf("Run(%s): %v", text, err)
		}
	}

	second := contexts[1]
	if len(second) != 4 || second[1].Content != "Hello" || second[2].Content != "re:Hello" || second[3].Content != "Again" {
		t.Fatalf("second turn saw %+v", second)
	}
	history := store.ContextFor("42")[1:]
	if len(history) != 4 || history[0].Role != llm.RoleUser {
		t.Fatalf("history = %+v", history)
	}
}
