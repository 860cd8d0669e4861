// Package ports defines the external collaborator interfaces of spec.md §6:
// the boundary between this module's core (bus, control plane, orchestrator,
// dispatcher) and the hardware/network-facing subsystems that are explicitly
// out of scope (display, audio DSP, Wi-Fi, Serial CLI transport, chat-app and
// WebSocket I/O, proxy tunneling, NVS, SPIFFS, STT/TTS). Only the interfaces
// are modeled here; the stub implementations beside each are intentionally
// minimal (log-and-return, in-memory state) and are not faithful
// reimplementations of those collaborators.
package ports

import "context"

// ChatSender delivers text to a conversational channel (telegram, websocket).
type ChatSender interface {
	Send(ctx context.Context, chatID, text string) error
}

// VoiceOut drives the voice collaborator's playback surface.
type VoiceOut interface {
	Speak(ctx context.Context, text string) error
	PlayMusic(ctx context.Context, query string) error
	StopMusic(ctx context.Context) error
}

// VolumeSink is the audio volume control surface the control plane's
// get_volume/set_volume capabilities operate on.
type VolumeSink interface {
	Set(ctx context.Context, pct int) error
	Get(ctx context.Context) (int, error)
}

// Rebooter performs (or simulates) a system restart.
type Rebooter interface {
	Reboot(ctx context.Context)
}

// SessionStore is the conversation-history collaborator: per-chat turn log,
// capped and trimmed by the caller (orchestrator) to SESSION_MAX_MSGS.
type SessionStore interface {
	Append(ctx context.Context, chatID, role, text string) error
	History(ctx context.Context, chatID string, maxTurns int) ([]SessionTurn, error)
	Clear(ctx context.Context, chatID string) error
	ListChats(ctx context.Context) ([]string, error)
}

// SessionTurn is one recorded (role, text) entry of a chat's history.
type SessionTurn struct {
	Role string
	Text string
	TsMs int64
}

// MemoryStore is the long-term/recent-notes collaborator.
type MemoryStore interface {
	ReadLongTerm(ctx context.Context) (string, error)
	WriteLongTerm(ctx context.Context, text string) error
	ReadRecent(ctx context.Context, days int) (string, error)
	AppendToday(ctx context.Context, note string) error
}

// ToolRegistry executes named tools and advertises their schema to the LLM.
type ToolRegistry interface {
	Execute(ctx context.Context, name string, inputJSON string) (string, error)
	ToolsJSON() ([]byte, error)
}

// LLM is the chat-completions collaborator the orchestrator's ReAct loop
// calls. Request/response shapes live in internal/llm to avoid a dependency
// cycle; this interface lets the orchestrator depend only on the method
// shape, not the concrete HTTP client.
type LLM interface {
	Complete(ctx context.Context, messages []LLMMessage, tools []LLMToolDefinition) (LLMResponse, error)
}

// LLMMessage mirrors llm.Message without importing internal/llm.
type LLMMessage struct {
	Role       string
	Content    string
	ToolCalls  []LLMToolCall
	ToolCallID string
}

// LLMToolCall mirrors llm.ToolCall.
type LLMToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// LLMToolDefinition mirrors llm.ToolDefinition.
type LLMToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// LLMResponse mirrors llm.Response.
type LLMResponse struct {
	Content          string
	ToolCalls        []LLMToolCall
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ModelUsed        string
}
