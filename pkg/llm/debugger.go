package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ResponseDebugger dumps raw backend response bodies to disk so that odd
// response shapes can be inspected after the fact.
type ResponseDebugger struct {
	file    *os.File
	enabled bool
}

// NewResponseDebugger opens debug/responses/<debug_id>/<provider>/<timestamp>.log
// when enabled. Any failure silently disables the debugger.
func NewResponseDebugger(ctx context.Context, provider string, enabled bool) *ResponseDebugger {
	if !enabled {
		return &ResponseDebugger{}
	}

	debugDir := filepath.Join("debug", "responses", provider)
	if id, ok := ctx.Value(DebugDirContextKey).(string); ok && id != "" {
		debugDir = filepath.Join("debug", "responses", id, provider)
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &ResponseDebugger{}
	}

	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", time.Now().Format("20060102_150405.000")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &ResponseDebugger{}
	}

	slog.Debug("Debug mode ON", "provider", provider, "file", filename)
	return &ResponseDebugger{file: f, enabled: true}
}

// Write appends raw data followed by a newline.
func (d *ResponseDebugger) Write(data []byte) {
	if !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.Write(data); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// Close closes the debug file handle.
func (d *ResponseDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
