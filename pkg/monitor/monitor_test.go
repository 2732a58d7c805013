package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"relaybot/pkg/llm"
)

func TestCustomHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: &level}))

	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, "ab12")
	logger.InfoContext(ctx, "Turn failed", "conversation", "telegram:42", "attempt", 2)

	line := buf.String()
	for _, want := range []string{"[INFO] [ab12] Turn failed", `conversation="telegram:42"`, "attempt=2"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q lacks %q", line, want)
		}
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "[DEBUG] shown") {
		t.Fatalf("level change not honoured: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCLIMonitorLines(t *testing.T) {
	var buf bytes.Buffer
	m := &CLIMonitor{writer: &buf}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: TypeUser, ChannelID: "telegram", Username: "Abebe", Content: "ሰላም"})
	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: TypeEdit, MessageID: "101", Content: "Hi there"})
	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: TypeInteraction, ChannelID: "telegram", Username: "Abebe", MessageID: "101", Content: "toggle:101:b"})

	out := buf.String()
	for _, want := range []string{
		"[telegram/Abebe] ሰላም",
		"[AI edit #101] Hi there",
		"pressed toggle:101:b on #101",
		"2024-01-02 03:04:05",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("monitor output lacks %q:\n%s", want, out)
		}
	}
}
