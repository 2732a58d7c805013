package gateway

import (
	"relaybot/pkg/api"
)

// Re-export types from api package via aliases so channel and handler code
// can depend on the gateway package alone.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext
type Outbound = api.Outbound
type Edit = api.Edit

// MessageHandler is still defined here as a function type, or can be aliased.
type MessageHandler = api.MessageHandler
