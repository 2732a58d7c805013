package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"relaybot/pkg/api"
	"relaybot/pkg/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Port int    `json:"port"` // Default: 9453
	Path string `json:"path"` // Default: /ws
}

// Frame types exchanged over the socket.
const (
	FrameMessage     = "message"
	FrameInteraction = "interaction"
	FrameEdit        = "edit"
	FrameSignal      = "signal"
)

// IncomingFrame is what the browser sends. Plain non-JSON text is treated as
// a message frame.
type IncomingFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

// ControlFrame is a button rendered under a message.
type ControlFrame struct {
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// OutgoingFrame is what the channel writes to the browser.
type OutgoingFrame struct {
	Type     string        `json:"type"`
	ID       string        `json:"id,omitempty"`
	Text     string        `json:"text,omitempty"`
	Markdown bool          `json:"markdown,omitempty"`
	Control  *ControlFrame    `json:"control,omitempty"`
	Menu     [][]ControlFrame `json:"menu,omitempty"`
	Value    string           `json:"value,omitempty"`
}

func toControlFrame(c *api.Control) *ControlFrame {
	if c == nil {
		return nil
	}
	return &ControlFrame{Label: c.Label, Payload: c.Payload, URL: c.URL}
}

func toMenuFrames(menu [][]api.Control) [][]ControlFrame {
	if len(menu) == 0 {
		return nil
	}
	rows := make([][]ControlFrame, 0, len(menu))
	for _, row := range menu {
		frames := make([]ControlFrame, 0, len(row))
		for i := range row {
			frames = append(frames, *toControlFrame(&row[i]))
		}
		rows = append(rows, frames)
	}
	return rows
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

type WebChannel struct {
	config      WebConfig
	server      *http.Server
	connections map[string]*SafeConn // Map client id -> WS Connection
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig) *WebChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &WebChannel{
		config:      cfg,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Handler returns the HTTP handler serving the socket endpoint.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(c.config.Path, func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	return mux
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := fmt.Sprintf(":%d", c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: c.Handler(ctx),
	}

	slog.Info("Web API listening", "port", c.config.Port, "path", c.config.Path)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) write(session api.SessionContext, frame OutgoingFrame) error {
	c.mu.RLock()
	conn, ok := c.connections[session.UserID]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frame.Type, err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Send implements api.Channel; message ids are generated locally.
func (c *WebChannel) Send(session api.SessionContext, msg api.Outbound) (string, error) {
	id := utils.GenerateID()
	err := c.write(session, OutgoingFrame{
		Type:     FrameMessage,
		ID:       id,
		Text:     msg.Text,
		Markdown: msg.Markdown,
		Control:  toControlFrame(msg.Control),
		Menu:     toMenuFrames(msg.Menu),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Edit implements api.Channel
func (c *WebChannel) Edit(session api.SessionContext, edit api.Edit) error {
	return c.write(session, OutgoingFrame{
		Type:     FrameEdit,
		ID:       edit.MessageID,
		Text:     edit.Text,
		Markdown: edit.Markdown,
		Control:  toControlFrame(edit.Control),
		Menu:     toMenuFrames(edit.Menu),
	})
}

// SendSignal implements the gateway.SignalingChannel interface
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	return c.write(session, OutgoingFrame{Type: FrameSignal, Value: signal})
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	// Wrap connection
	conn := &SafeConn{Conn: rawConn}
	clientID := uuid.NewString()

	// 同一個 chat 參數可讓重新連線的頁面延續對話
	chatID := r.URL.Query().Get("chat")
	if chatID == "" {
		chatID = clientID
	}
	username := r.URL.Query().Get("name")
	if username == "" {
		username = "WebUser"
	}

	c.mu.Lock()
	c.connections[clientID] = conn
	c.mu.Unlock()
	slog.Debug("Web client connected", "client", clientID, "chat", chatID)

	defer func() {
		c.mu.Lock()
		delete(c.connections, clientID)
		c.mu.Unlock()
		conn.Close()
		slog.Debug("Web client disconnected", "client", clientID)
	}()

	session := api.SessionContext{
		ChannelID: c.ID(),
		UserID:    clientID,
		ChatID:    chatID,
		Username:  username,
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		msg := parseFrame(session, data)
		if msg == nil {
			continue
		}
		ctx.OnMessage(c.ID(), msg)
	}
}

// parseFrame converts one socket frame to a UnifiedMessage, or nil when the
// frame carries nothing to handle.
func parseFrame(session api.SessionContext, data []byte) *api.UnifiedMessage {
	var in IncomingFrame
	if err := json.Unmarshal(data, &in); err != nil {
		// Fallback: treat as plain text
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}
		return &api.UnifiedMessage{Session: session, Content: text}
	}

	switch in.Type {
	case FrameInteraction:
		if in.MessageID == "" || in.Payload == "" {
			slog.Warn("Incomplete interaction frame", "client", session.UserID)
			return nil
		}
		return &api.UnifiedMessage{
			Session:     session,
			Interaction: &api.Interaction{MessageID: in.MessageID, Payload: in.Payload},
		}
	case FrameMessage, "":
		if strings.TrimSpace(in.Text) == "" {
			return nil
		}
		return &api.UnifiedMessage{Session: session, Content: in.Text}
	default:
		slog.Warn("Unknown frame type", "type", in.Type, "client", session.UserID)
		return nil
	}
}
