package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"relaybot/pkg/api"
	"relaybot/pkg/config"
	"relaybot/pkg/llm"
	"relaybot/pkg/pipeline"
	"relaybot/pkg/toggle"
	"relaybot/pkg/utils"
)

// ChatHandler routes every inbound unit of work. Button presses go to the menu
// or the toggle machine, slash commands and creator questions are answered
// directly, and everything else runs through the message pipeline.
type ChatHandler struct {
	pipeline     *pipeline.Pipeline   // Translate / generate / deliver cycle
	toggles      *toggle.Machine      // Language toggle transitions
	responder    api.MessageResponder // Route replies back through the gateway
	config       *config.Config       // Business-level application configuration
	systemConfig *config.SystemConfig // Technical/engine-level configuration parameters
}

// NewChatHandler creates a ChatHandler. The responder is injected later by the
// GatewayBuilder through SetResponder.
func NewChatHandler(p *pipeline.Pipeline, toggles *toggle.Machine, cfg *config.Config, sysCfg *config.SystemConfig) *ChatHandler {
	return &ChatHandler{
		pipeline:     p,
		toggles:      toggles,
		config:       cfg,
		systemConfig: sysCfg,
	}
}

// SetResponder implements api.ResponderAware
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// OnMessage is the entry point for one inbound message or interaction. It
// runs on its own goroutine; a panic is logged and never reaches the gateway.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if msg.DebugID == "" {
		msg.DebugID = utils.GenerateDebugID()
	}
	start := time.Now()

	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, msg.DebugID)
	if h.systemConfig != nil && h.systemConfig.LLMTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.systemConfig.LLMTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Handler panic recovered", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if msg.IsInteraction() {
		if isMenuPayload(msg.Interaction.Payload) {
			h.handleMenu(ctx, msg)
			return
		}
		h.handleInteraction(ctx, msg)
		return
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	slog.InfoContext(ctx, "Message received", "channel", msg.Session.ChannelID, "user", msg.Session.Username, "chars", utils.RuneCount(content))

	// --- Slash Commands ---
	// Commands never enter the conversation history
	if strings.HasPrefix(content, "/") {
		h.handleSlashCommand(ctx, msg.Session, content)
		return
	}

	// 詢問作者的問題直接以固定文字回覆，不進入歷史
	if h.isCreatorQuestion(content) {
		h.reply(ctx, msg.Session, api.Outbound{Text: h.config.Messages.CreatorReply, Markdown: h.markdown()})
		return
	}

	if err := h.pipeline.Handle(ctx, h.responder, msg); err != nil {
		slog.WarnContext(ctx, "Turn aborted", "duration", time.Since(start).String(), "error", err)
		return
	}
	slog.InfoContext(ctx, "Turn finished", "duration", time.Since(start).String())
}

// handleInteraction applies a toggle press to the message carrying the button.
func (h *ChatHandler) handleInteraction(ctx context.Context, msg *api.UnifiedMessage) {
	r := h.toggles.Transition(msg.Session.ConversationID(), msg.Interaction.MessageID, msg.Interaction.Payload)
	if r.Terminal() {
		slog.WarnContext(ctx, "Toggle rejected", "outcome", r.Outcome.String(), "message_id", msg.Interaction.MessageID, "error", r.Err)
	} else {
		slog.DebugContext(ctx, "Toggle rendered", "message_id", r.MessageID, "variant", string(r.Variant))
	}

	edit := api.Edit{
		MessageID: msg.Interaction.MessageID,
		Text:      r.Text,
		Control:   r.Control,
		Markdown:  h.markdown(),
	}
	if err := h.responder.EditReply(msg.Session, edit); err != nil {
		slog.ErrorContext(ctx, "Failed to apply toggle", "message_id", edit.MessageID, "error", err)
	}
}

// handleSlashCommand answers /start with the greeting menu and /help with the
// help screen. Unknown commands get the help screen too.
func (h *ChatHandler) handleSlashCommand(ctx context.Context, session api.SessionContext, content string) {
	cmd := strings.Fields(content)[0]
	// "/start@my_bot" 形式的群組指令
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}

	out := api.Outbound{Markdown: h.markdown()}
	switch strings.ToLower(cmd) {
	case "/start":
		out.Text = h.config.Messages.Greeting
		if strings.Contains(out.Text, "%s") {
			out.Text = fmt.Sprintf(out.Text, session.Username)
		}
		out.Menu = h.startMenu()
	default:
		out.Text, out.Menu = h.config.Messages.Help, h.helpMenu()
	}
	h.reply(ctx, session, out)
}

func (h *ChatHandler) reply(ctx context.Context, session api.SessionContext, out api.Outbound) {
	if _, err := h.responder.SendReply(session, out); err != nil {
		slog.ErrorContext(ctx, "Failed to send reply", "error", err)
	}
}

func (h *ChatHandler) markdown() bool {
	return h.systemConfig != nil && h.systemConfig.UseMarkdown
}
