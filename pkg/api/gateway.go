package api

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	// Send delivers a new message and returns the platform message id that
	// later edits and interactions refer to.
	Send(session SessionContext, msg Outbound) (string, error)
	// Edit replaces the text and control of a message sent earlier.
	Edit(session SessionContext, edit Edit) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators, thinking UI).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g., "thinking", "typing")
	// to the target session to change UI state or metadata.
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, msg Outbound) (string, error)
	EditReply(session SessionContext, edit Edit) error
	SendSignal(session SessionContext, signal string) error
}

// Control is a single interactive button attached to a message. Pressing it
// comes back as an Interaction carrying Payload, unless URL is set, in which
// case the platform opens the link instead.
type Control struct {
	Label   string
	Payload string
	URL     string
}

// Outbound is a new message to deliver.
type Outbound struct {
	Text     string
	Control  *Control    // nil for no button
	Menu     [][]Control // extra button rows below Control
	Markdown bool        // render Text as Markdown when the platform supports it
}

// Edit rewrites an existing message in place. A nil Control and an empty Menu
// remove all buttons.
type Edit struct {
	MessageID string
	Text      string
	Control   *Control
	Menu      [][]Control
	Markdown  bool
}

// Interaction is a user action on a Control of an earlier message.
type Interaction struct {
	MessageID string // id of the message that carried the control
	Payload   string // opaque payload of the pressed control
}

// UnifiedMessage defines the standardized internal data structure for all
// incoming messages. Exactly one of Content and Interaction is meaningful.
type UnifiedMessage struct {
	Session     SessionContext // Contextual information about the source (User, Chat)
	Content     string         // Standardized text content of the message
	Interaction *Interaction   // Set when the user pressed a control instead of typing
	Raw         any            // Optional storage for the original platform-specific payload object
	DebugID     string         // Unique identifier for grouping the logs of this request
}

// IsInteraction reports whether the message is a control press.
func (m *UnifiedMessage) IsInteraction() bool {
	return m.Interaction != nil
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "telegram")
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group (may match UserID for DMs)
	Username  string // Display name or nickname of the user as provided by the platform
}

// ConversationID identifies the conversation this session belongs to. Chats
// on different channels never share history.
func (s SessionContext) ConversationID() string {
	return s.ChannelID + ":" + s.ChatID
}

// MessageHandler defines the function signature for processing incoming messages.
// It implements the MessageProcessor interface.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// GatewayHandler is a composite interface for components that handle incoming
// messages AND are aware of the responder (e.g., ChatHandler).
type GatewayHandler interface {
	MessageProcessor
	ResponderAware
}
