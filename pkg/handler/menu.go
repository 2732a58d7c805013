package handler

import (
	"context"
	"log/slog"
	"strings"

	"relaybot/pkg/api"
)

// Menu payloads share the interaction channel with toggle payloads.
const (
	menuPrefix = "menu:"
	menuStart  = menuPrefix + "start"
	menuHelp   = menuPrefix + "help"
)

func isMenuPayload(payload string) bool {
	return strings.HasPrefix(payload, menuPrefix)
}

// startMenu lays out the configured links followed by Help, two per row.
func (h *ChatHandler) startMenu() [][]api.Control {
	var buttons []api.Control
	for _, link := range h.config.Menu.Links {
		buttons = append(buttons, api.Control{Label: link.Label, URL: link.URL})
	}
	buttons = append(buttons, api.Control{Label: h.config.Messages.HelpButton, Payload: menuHelp})

	var rows [][]api.Control
	for len(buttons) > 0 {
		n := min(2, len(buttons))
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	return rows
}

func (h *ChatHandler) helpMenu() [][]api.Control {
	return [][]api.Control{{{Label: h.config.Messages.BackButton, Payload: menuStart}}}
}

// handleMenu switches the menu message between the welcome and help screens.
func (h *ChatHandler) handleMenu(ctx context.Context, msg *api.UnifiedMessage) {
	edit := api.Edit{
		MessageID: msg.Interaction.MessageID,
		Markdown:  h.markdown(),
	}
	switch msg.Interaction.Payload {
	case menuHelp:
		edit.Text, edit.Menu = h.config.Messages.Help, h.helpMenu()
	case menuStart:
		edit.Text, edit.Menu = h.config.Messages.Welcome, h.startMenu()
	default:
		slog.WarnContext(ctx, "Unknown menu action", "payload", msg.Interaction.Payload)
		edit.Text = h.config.Messages.InvalidAction
	}

	if err := h.responder.EditReply(msg.Session, edit); err != nil {
		slog.ErrorContext(ctx, "Failed to switch menu", "message_id", edit.MessageID, "error", err)
	}
}

// isCreatorQuestion reports whether text asks who made the bot.
func (h *ChatHandler) isCreatorQuestion(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range h.config.Menu.CreatorKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
