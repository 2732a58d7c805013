package monitor

import "time"

// 監控訊息類型
const (
	TypeUser        = "USER"
	TypeAssistant   = "ASSISTANT"
	TypeEdit        = "EDIT"
	TypeInteraction = "INTERACTION"
)

// MonitorMessage 代表一則監控訊息
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // TypeUser, TypeAssistant, TypeEdit or TypeInteraction
	ChannelID   string
	Username    string
	MessageID   string // 平台訊息 ID，編輯與按鈕互動時使用
	Content     string
}

// Monitor 介面定義了監控器的行為
type Monitor interface {
	// Start 啟動監控器
	Start() error

	// Stop 停止監控器
	Stop() error

	// OnMessage 接收並顯示監控訊息
	OnMessage(msg MonitorMessage)
}
