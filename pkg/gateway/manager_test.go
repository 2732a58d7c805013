package gateway

import (
	"strconv"
	"sync"
	"testing"

	"relaybot/pkg/api"
	"relaybot/pkg/monitor"
)

type fakeChannel struct {
	mu      sync.Mutex
	started bool
	stopped bool
	sent    []api.Outbound
	edits   []api.Edit
	signals []string
	ctx     api.ChannelContext
}

func (f *fakeChannel) ID() string { return "fake" }

func (f *fakeChannel) Start(ctx api.ChannelContext) error {
	f.started = true
	f.ctx = ctx
	return nil
}

func (f *fakeChannel) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeChannel) Send(session api.SessionContext, msg api.Outbound) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return strconv.Itoa(len(f.sent)), nil
}

func (f *fakeChannel) Edit(session api.SessionContext, edit api.Edit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return nil
}

func (f *fakeChannel) SendSignal(session api.SessionContext, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

type recordingMonitor struct {
	mu   sync.Mutex
	msgs []monitor.MonitorMessage
}

func (r *recordingMonitor) Start() error { return nil }
func (r *recordingMonitor) Stop() error  { return nil }
func (r *recordingMonitor) OnMessage(m monitor.MonitorMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

type echoHandler struct {
	responder api.MessageResponder
	wg        *sync.WaitGroup
}

func (e *echoHandler) SetResponder(r api.MessageResponder) { e.responder = r }

func (e *echoHandler) OnMessage(msg *api.UnifiedMessage) {
	defer e.wg.Done()
	e.responder.SendReply(msg.Session, api.Outbound{Text: "echo: " + msg.Content})
}

func TestBuilderWiresHandlerAndChannels(t *testing.T) {
	ch := &fakeChannel{}
	mon := &recordingMonitor{}
	var wg sync.WaitGroup
	h := &echoHandler{wg: &wg}

	gw, err := NewGatewayBuilder().WithMonitor(mon).WithChannel(ch).WithHandler(h).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !ch.started || h.responder == nil {
		t.Fatalf("channel not started or responder not injected")
	}

	session := api.SessionContext{ChannelID: "fake", ChatID: "1", Username: "u"}
	wg.Add(1)
	ch.ctx.OnMessage("fake", &api.UnifiedMessage{Session: session, Content: "hi"})
	wg.Wait()

	if len(ch.sent) != 1 || ch.sent[0].Text != "echo: hi" {
		t.Fatalf("unexpected sends %+v", ch.sent)
	}

	gw.StopAll()
	if !ch.stopped {
		t.Fatalf("channel not stopped")
	}

	mon.mu.Lock()
	defer mon.mu.Unlock()
	if len(mon.msgs) != 2 || mon.msgs[0].MessageType != monitor.TypeUser || mon.msgs[1].MessageType != monitor.TypeAssistant {
		t.Fatalf("unexpected monitor trail %+v", mon.msgs)
	}
	if mon.msgs[1].MessageID != "1" {
		t.Fatalf("assistant message id not recorded: %+v", mon.msgs[1])
	}
}

func TestRoutingToChannel(t *testing.T) {
	ch := &fakeChannel{}
	gw := NewGatewayManager()
	gw.Register(ch)
	session := api.SessionContext{ChannelID: "fake", ChatID: "1"}

	id, err := gw.SendReply(session, api.Outbound{Text: "a"})
	if err != nil || id != "1" {
		t.Fatalf("SendReply = %q, %v", id, err)
	}
	if err := gw.EditReply(session, api.Edit{MessageID: id, Text: "b"}); err != nil {
		t.Fatalf("EditReply: %v", err)
	}
	if err := gw.SendSignal(session, "typing"); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if len(ch.edits) != 1 || len(ch.signals) != 1 {
		t.Fatalf("edits=%d signals=%d", len(ch.edits), len(ch.signals))
	}

	missing := api.SessionContext{ChannelID: "nope"}
	if _, err := gw.SendReply(missing, api.Outbound{Text: "x"}); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
	if err := gw.EditReply(missing, api.Edit{}); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}
