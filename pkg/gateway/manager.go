package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relaybot/pkg/monitor"
)

// GatewayManager 負責管理所有的 Channels 並統一路由訊息
type GatewayManager struct {
	channels   map[string]Channel
	msgHandler MessageHandler
	monitor    monitor.Monitor // 監控器
	inflight   sync.WaitGroup  // 正在處理中的訊息
	mu         sync.RWMutex
}

// NewGatewayManager 建立一個新的 GatewayManager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]Channel),
	}
}

// SetMessageHandler 設定處理訊息的核心邏輯
func (g *GatewayManager) SetMessageHandler(handler MessageHandler) {
	g.msgHandler = handler
}

// SetMonitor 設定監控器
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register 註冊一個 Channel
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel (通常用於主動發送訊息)
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll 啟動所有已註冊的 Channels
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		// 啟動 Channel，並傳入 self 作為 Context
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll 停止所有 Channels，並等待處理中的訊息結束
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
	g.mu.RUnlock()

	g.inflight.Wait()
	if g.monitor != nil {
		g.monitor.Stop()
	}
}

func (g *GatewayManager) notify(msgType string, session SessionContext, messageID, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: msgType,
		ChannelID:   session.ChannelID,
		Username:    session.Username,
		MessageID:   messageID,
		Content:     content,
	})
}

// SendReply 統一的回覆介面，透過 Channel 介面送出新訊息並回傳平台訊息 ID
func (g *GatewayManager) SendReply(session SessionContext, msg Outbound) (string, error) {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return "", fmt.Errorf("channel %s not found", session.ChannelID)
	}

	id, err := c.Send(session, msg)
	if err != nil {
		return "", err
	}

	slog.Debug("Reply sent", "channel", session.ChannelID, "user", session.Username, "message_id", id)
	g.notify(monitor.TypeAssistant, session, id, msg.Text)
	return id, nil
}

// EditReply 就地修改先前送出的訊息
func (g *GatewayManager) EditReply(session SessionContext, edit Edit) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if err := c.Edit(session, edit); err != nil {
		return err
	}

	slog.Debug("Reply edited", "channel", session.ChannelID, "message_id", edit.MessageID, "control", edit.Control != nil)
	g.notify(monitor.TypeEdit, session, edit.MessageID, edit.Text)
	return nil
}

// SendSignal 發送一個控制訊號 (如 typing) 到 Channel
func (g *GatewayManager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	// 檢查 Channel 是否支援訊號介面
	if sc, ok := c.(SignalingChannel); ok {
		return sc.SendSignal(session, signal)
	}

	// 不支援的通道安靜地忽略
	return nil
}

// OnMessage 實作 ChannelContext 介面，接收來自 Channel 的訊息
// 每則訊息在獨立的 goroutine 中處理，不同對話互不阻塞
func (g *GatewayManager) OnMessage(channelID string, msg *UnifiedMessage) {
	if msg.IsInteraction() {
		slog.Debug("Interaction received", "channel", channelID, "user", msg.Session.Username, "message_id", msg.Interaction.MessageID)
		g.notify(monitor.TypeInteraction, msg.Session, msg.Interaction.MessageID, msg.Interaction.Payload)
	} else {
		slog.Debug("Message received", "channel", channelID, "user", msg.Session.Username, "user_id", msg.Session.UserID)
		g.notify(monitor.TypeUser, msg.Session, "", msg.Content)
	}

	if g.msgHandler == nil {
		slog.Warn("No message handler set", "channel", channelID)
		return
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		g.msgHandler(msg)
	}()
}
