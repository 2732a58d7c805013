package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"relaybot/pkg/api"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig encapsulates the credentials required to authenticate with
// the Telegram Bot API.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
}

// TelegramChannel is the production implementation of gateway.Channel for
// the Telegram platform. Replies carry an inline keyboard button for the
// language toggle; button presses arrive as callback queries.
type TelegramChannel struct {
	config     TelegramConfig     // Auth credentials
	bot        *tgbotapi.BotAPI   // Underlying Telegram SDK client
	stopCtx    context.Context    // Context used to forcibly abort the long-polling HTTP request
	stopCancel context.CancelFunc // Function to trigger the abort
}

func NewTelegramChannel(cfg TelegramConfig) (api.Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Create a dedicated HTTP client for the bot so we can forcefully close it on shutdown.
	// By tying the DialContext to our stopCtx, active long-polling requests are
	// aborted when Stop() is called, preventing the 409 Conflict on restart.
	dialer := &net.Dialer{
		Timeout:   60 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	botHttpClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				// We wrap the context with our stopCtx so we can arbitrarily kill the connection
				mergedCtx, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-mergedCtx.Done():
					}
				}()
				return dialer.DialContext(mergedCtx, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHttpClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramChannel{
		config:     cfg,
		bot:        bot,
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start initiates the long-polling update loop in a background goroutine.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	offset := 0

	go func() {
		for {
			select {
			case <-t.stopCtx.Done():
				return // Gracefully exit on shutdown
			default:
			}

			// Use GetUpdates instead of GetUpdatesChan so we control the offset
			// and can stop between polls.
			reqConfig := tgbotapi.NewUpdate(offset)
			reqConfig.Timeout = 60

			updates, err := t.bot.GetUpdates(reqConfig)
			if err != nil {
				select {
				case <-t.stopCtx.Done():
					return // Ignore error if we are shutting down
				default:
					slog.Debug("Failed to get telegram updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID < offset {
					continue
				}
				offset = update.UpdateID + 1

				msg := convertUpdate(update)
				if msg == nil {
					continue
				}

				if update.CallbackQuery != nil {
					// 立即回應 callback，避免按鈕持續顯示載入中
					if _, err := t.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
						slog.Debug("Failed to answer callback query", "error", err)
					}
				}

				ctx.OnMessage(t.ID(), msg)
			}
		}
	}()

	return nil
}

// convertUpdate maps a Telegram update to a UnifiedMessage, or nil for
// updates the relay does not handle.
func convertUpdate(update tgbotapi.Update) *api.UnifiedMessage {
	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return nil
		}
		return &api.UnifiedMessage{
			Session: sessionFor(cq.From, cq.Message.Chat),
			Interaction: &api.Interaction{
				MessageID: strconv.Itoa(cq.Message.MessageID),
				Payload:   cq.Data,
			},
			Raw: cq,
		}
	}

	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return nil
	}
	content := m.Text
	if content == "" {
		content = m.Caption
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return &api.UnifiedMessage{
		Session: sessionFor(m.From, m.Chat),
		Content: content,
		Raw:     m,
	}
}

func sessionFor(from *tgbotapi.User, chat *tgbotapi.Chat) api.SessionContext {
	return api.SessionContext{
		ChannelID: "telegram",
		UserID:    strconv.FormatInt(from.ID, 10),
		ChatID:    strconv.FormatInt(chat.ID, 10),
		Username:  displayName(from),
	}
}

// displayName prefers the user's first name, as shown in Telegram clients.
func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

// keyboardFor lays out control on its own row followed by the menu rows.
func keyboardFor(control *api.Control, menu [][]api.Control) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if control != nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttonFor(*control)))
	}
	for _, row := range menu {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, c := range row {
			buttons = append(buttons, buttonFor(c))
		}
		if len(buttons) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func buttonFor(c api.Control) tgbotapi.InlineKeyboardButton {
	if c.URL != "" {
		return tgbotapi.NewInlineKeyboardButtonURL(c.Label, c.URL)
	}
	return tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Payload)
}

func parseChatID(session api.SessionContext) (int64, error) {
	// Telegram Chat ID must be int64
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}
	return chatID, nil
}

// SendSignal implements the gateway.SignalingChannel interface
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal != "typing" && signal != "thinking" {
		return nil
	}
	chatID, err := parseChatID(session)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel() // Cancel our custom long-polling loop immediately

	// Forcefully close lingering HTTP connections
	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}

	return nil
}

// Send implements api.Channel and returns the Telegram message id.
func (t *TelegramChannel) Send(session api.SessionContext, out api.Outbound) (string, error) {
	chatID, err := parseChatID(session)
	if err != nil {
		return "", err
	}

	build := func(markdown bool) tgbotapi.MessageConfig {
		msg := tgbotapi.NewMessage(chatID, out.Text)
		if markdown {
			msg.ParseMode = tgbotapi.ModeMarkdown
		}
		if kb := keyboardFor(out.Control, out.Menu); kb != nil {
			msg.ReplyMarkup = *kb
		}
		return msg
	}

	sent, err := t.bot.Send(build(out.Markdown))
	if out.Markdown && isEntityParseError(err) {
		// 模型產生的 Markdown 不一定合法，退回純文字再送一次
		// 其他錯誤（例如網路中斷）可能已送達，不重送
		slog.Debug("Markdown send rejected, retrying as plain text", "error", err)
		sent, err = t.bot.Send(build(false))
	}
	if err != nil {
		return "", fmt.Errorf("telegram send failed: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Edit implements api.Channel. Re-sending identical content is not an error.
func (t *TelegramChannel) Edit(session api.SessionContext, edit api.Edit) error {
	chatID, err := parseChatID(session)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(edit.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id for telegram: %s", edit.MessageID)
	}

	build := func(markdown bool) tgbotapi.EditMessageTextConfig {
		var cfg tgbotapi.EditMessageTextConfig
		if kb := keyboardFor(edit.Control, edit.Menu); kb != nil {
			cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, edit.Text, *kb)
		} else {
			cfg = tgbotapi.NewEditMessageText(chatID, messageID, edit.Text)
		}
		if markdown {
			cfg.ParseMode = tgbotapi.ModeMarkdown
		}
		return cfg
	}

	_, err = t.bot.Request(build(edit.Markdown))
	if edit.Markdown && isEntityParseError(err) {
		slog.Debug("Markdown edit rejected, retrying as plain text", "error", err)
		_, err = t.bot.Request(build(false))
	}
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("telegram edit failed: %w", err)
	}
	return nil
}

// isEntityParseError reports whether Telegram rejected the Markdown itself,
// which is the only case where resending as plain text cannot duplicate.
func isEntityParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
