package ports

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// InMemoryVolumeSink is a minimal VolumeSink backed by an atomic counter.
// It exists to make the control plane runnable and testable; it does not
// model a real audio DSP.
type InMemoryVolumeSink struct {
	pct atomic.Int32
}

// NewInMemoryVolumeSink creates a sink starting at the given percentage.
func NewInMemoryVolumeSink(initial int) *InMemoryVolumeSink {
	s := &InMemoryVolumeSink{}
	s.pct.Store(int32(initial))
	return s
}

func (s *InMemoryVolumeSink) Set(_ context.Context, pct int) error {
	s.pct.Store(int32(pct))
	return nil
}

func (s *InMemoryVolumeSink) Get(_ context.Context) (int, error) {
	return int(s.pct.Load()), nil
}

// LoggingChatSender logs outgoing text instead of calling a real chat API.
type LoggingChatSender struct {
	Channel string
	Logger  *slog.Logger
}

func (s *LoggingChatSender) Send(_ context.Context, chatID, text string) error {
	s.Logger.Info("chat send", "channel", s.Channel, "chat_id", chatID, "text", text)
	return nil
}

// LoggingVoiceOut logs voice actions instead of driving real audio hardware.
type LoggingVoiceOut struct {
	Logger *slog.Logger
}

func (v *LoggingVoiceOut) Speak(_ context.Context, text string) error {
	v.Logger.Info("voice speak", "text", text)
	return nil
}

func (v *LoggingVoiceOut) PlayMusic(_ context.Context, query string) error {
	v.Logger.Info("voice play_music", "query", query)
	return nil
}

func (v *LoggingVoiceOut) StopMusic(_ context.Context) error {
	v.Logger.Info("voice stop_music")
	return nil
}

// LoggingRebooter logs instead of restarting the process.
type LoggingRebooter struct {
	Logger *slog.Logger
}

func (r *LoggingRebooter) Reboot(_ context.Context) {
	r.Logger.Warn("reboot requested")
}

// ToolHandler implements one named tool's execution.
type ToolHandler func(ctx context.Context, inputJSON string) (string, error)

// MapToolRegistry is a minimal ToolRegistry backed by a name→handler map and
// a hand-maintained JSON schema, not a faithful reimplementation of any
// production tool-calling framework.
type MapToolRegistry struct {
	handlers map[string]ToolHandler
	schema   []byte
}

// NewMapToolRegistry builds a registry from handlers and a pre-built
// tools-schema JSON document (OpenAI function-calling array shape).
func NewMapToolRegistry(handlers map[string]ToolHandler, schemaJSON []byte) *MapToolRegistry {
	return &MapToolRegistry{handlers: handlers, schema: schemaJSON}
}

func (r *MapToolRegistry) Execute(ctx context.Context, name string, inputJSON string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return h(ctx, inputJSON)
}

func (r *MapToolRegistry) ToolsJSON() ([]byte, error) {
	return r.schema, nil
}
