package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/jholhewres/mimiclaw/internal/bus"
	"github.com/jholhewres/mimiclaw/internal/controlplane"
	"github.com/jholhewres/mimiclaw/internal/mimierr"
	"github.com/jholhewres/mimiclaw/internal/ports"
)

// Config bounds the per-turn ReAct loop, matching original_source/main/mimi_config.h.
type Config struct {
	MaxContextBytes     int
	MaxToolIterations   int
	TurnTimeoutMs       int64
	ToolResultMaxBytes  int
	ToolResultsTotalMax int
	SessionMaxMsgs      int
}

// DefaultConfig matches spec §6's stated numeric defaults.
func DefaultConfig() Config {
	return Config{
		MaxContextBytes:     24 * 1024,
		MaxToolIterations:   10,
		TurnTimeoutMs:       45_000,
		ToolResultMaxBytes:  2048,
		ToolResultsTotalMax: 4096,
		SessionMaxMsgs:      20,
	}
}

// Deps are the orchestrator's external collaborators.
type Deps struct {
	ControlPlane *controlplane.Plane
	LLM          ports.LLM
	Sessions     ports.SessionStore
	Memory       ports.MemoryStore
	Tools        ports.ToolRegistry
	RouteHints   *RouteHintTable
	SkillRules   *SkillRuleSet
	PushOutbound func(ctx context.Context, msg bus.Message) error
}

// Orchestrator runs one inbound message through the control-plane fast path
// or, failing that, the hard-budgeted ReAct loop, then delivers at most one
// outbound reply per turn.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	composer *PromptComposer
	stats    *Stats
	log      *slog.Logger
}

// New constructs an Orchestrator. deps must be fully populated; composer and
// stats may be nil, in which case sensible defaults are created.
func New(cfg Config, deps Deps, composer *PromptComposer, stats *Stats, logger *slog.Logger) *Orchestrator {
	if composer == nil {
		composer = NewPromptComposer("Mimi", "", "")
	}
	if stats == nil {
		stats = &Stats{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, deps: deps, composer: composer, stats: stats, log: logger.With("component", "orchestrator")}
}

// Stats exposes the lifetime counters, per spec §6's orchestrator::stats.
func (o *Orchestrator) Stats() Snapshot { return o.stats.Snapshot() }

// RecordOutboundSendFailure satisfies dispatcher.FailureRecorder, per spec
// §6's orchestrator::record_outbound_send_failure.
func (o *Orchestrator) RecordOutboundSendFailure() { o.stats.RecordOutboundSendFailure() }

// workingPhrases are the randomized "still working" status phrases spec
// §4.3 step 3 describes; sent at most once per turn, best-effort.
var workingPhrases = []string{
	"正在处理", "让我想想", "稍等一下", "正在查询",
}

// HandleMessage runs one full turn for msg: control-plane fast path first,
// then (if unhandled) the ReAct loop, then exactly one outbound delivery
// except for a silent control-plane success or an empty final response_text.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg bus.Message) error {
	deadline := time.Now().Add(time.Duration(o.cfg.TurnTimeoutMs) * time.Millisecond)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if o.deps.ControlPlane != nil {
		result := o.deps.ControlPlane.TryHandleMessage(ctx, msg)
		if result.Handled {
			return o.deliverControlPlaneResult(ctx, msg, result)
		}
	}

	return o.runReactLoop(ctx, msg)
}

// deliverControlPlaneResult honors spec §9 resolution #1: the user turn is
// always recorded on the control-plane fast path, even when response_text is
// empty (e.g. play_music's silent success). Only the assistant turn and the
// outbound delivery are conditional on non-empty response text.
func (o *Orchestrator) deliverControlPlaneResult(ctx context.Context, msg bus.Message, result controlplane.Result) error {
	if err := o.appendSession(ctx, msg.ChatID, "user", msg.Content); err != nil {
		o.log.Warn("session append failed", "err", err)
	}
	if result.ResponseText == "" {
		return nil
	}
	if err := o.appendSession(ctx, msg.ChatID, "assistant", result.ResponseText); err != nil {
		o.log.Warn("session append failed", "err", err)
	}
	return o.send(ctx, msg, result.ResponseText)
}

// runReactLoop implements spec §4.3's turn pipeline: compose the system
// prompt, call the LLM, execute any requested tools, repeat until the model
// stops calling tools, the iteration limit is hit, or a budget is exceeded.
// Every failure state produces exactly one outbound error message, per spec
// §7's "the turn never leaks" propagation policy, and a successful turn
// delivers its final text. A turn whose LLM reply carries neither tool calls
// nor text ends with no outbound message.
func (o *Orchestrator) runReactLoop(ctx context.Context, msg bus.Message) error {
	turn := TurnStats{}
	defer func() { o.stats.RecordTurn(turn) }()

	userContent := o.composeUserContent(msg)

	history, err := o.recentHistoryText(ctx, msg.ChatID)
	if err != nil {
		o.log.Warn("history load failed", "err", err)
	}

	if o.deps.Memory != nil {
		o.composer.SetLongTermMemory(func() string {
			text, err := o.deps.Memory.ReadLongTerm(ctx)
			if err != nil {
				return ""
			}
			return text
		})
		o.composer.SetRecentNotes(func() string {
			text, err := o.deps.Memory.ReadRecent(ctx, 3)
			if err != nil {
				return ""
			}
			return text
		})
	}

	systemPrompt := o.composer.Compose(history, TurnContext{SourceChannel: msg.Channel, SourceChatID: msg.ChatID})

	var toolDefs []ports.LLMToolDefinition
	if o.deps.Tools != nil {
		toolDefs, err = toolsToLLM(o.deps.Tools)
		if err != nil {
			o.log.Warn("tool schema load failed", "err", err)
		}
	}

	messages := []ports.LLMMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}

	var finalText string
	statusSent := false

	for iter := 0; iter < o.cfg.MaxToolIterations; iter++ {
		if ctx.Err() != nil {
			turn.HitTimeout = true
			break
		}

		contextBytes := estimateContextBytes(messages)
		turn.ContextBytes = contextBytes
		if contextBytes > o.cfg.MaxContextBytes {
			turn.HitContextBudget = true
			o.log.Warn("turn aborted: context budget exceeded", "chat_id", msg.ChatID, "bytes", contextBytes)
			break
		}

		if iter == 0 && !statusSent && msg.Channel != bus.ChannelSystem {
			statusSent = true
			o.sendWorkingStatus(ctx, msg)
		}

		start := time.Now()
		resp, llmErr := o.deps.LLM.Complete(ctx, messages, toolDefs)
		turn.LLMCalls++
		turn.LLMMs += time.Since(start).Milliseconds()
		if llmErr != nil {
			turn.HitLLMError = true
			o.log.Error("llm completion failed", "err", llmErr, "chat_id", msg.ChatID)
			return o.failTurn(ctx, msg, &turn, llmErrorMessage(llmErr))
		}

		if len(resp.ToolCalls) == 0 || o.deps.Tools == nil {
			finalText = resp.Content
			break
		}

		assistantMsg := ports.LLMMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistantMsg)

		toolsStart := time.Now()
		toolResults, exhausted := runToolCalls(ctx, o.deps.Tools, resp.ToolCalls, &turn, o.cfg.ToolResultMaxBytes, o.cfg.ToolResultsTotalMax)
		turn.ToolsMs += time.Since(toolsStart).Milliseconds()
		messages = append(messages, toolResults...)
		if exhausted {
			turn.HitToolBudget = true
			o.log.Warn("tool result budget exceeded", "chat_id", msg.ChatID)
			break
		}

		if iter == o.cfg.MaxToolIterations-1 {
			turn.HitIterationLimit = true
		}
	}

	switch {
	case turn.HitTimeout:
		return o.failTurn(ctx, msg, &turn, "抱歉，这次请求处理超时了，请稍后再试。")
	case turn.HitContextBudget:
		return o.failTurn(ctx, msg, &turn, "抱歉，这次对话内容过长，我暂时无法处理，请换个简短的问题试试。")
	case turn.HitToolBudget:
		return o.failTurn(ctx, msg, &turn, "抱歉，这次工具调用返回的数据太多，我无法继续处理。")
	case turn.HitIterationLimit:
		return o.failTurn(ctx, msg, &turn, "抱歉，这个请求需要的步骤太多，我暂时无法完成，请换个方式问我。")
	}

	if finalText == "" {
		// The LLM produced no tool calls and no text: treat as a degenerate
		// success with nothing to say, rather than a failure the user never
		// asked to see a message about.
		turn.Success = true
		return nil
	}

	turn.Success = true
	if err := o.appendSession(ctx, msg.ChatID, "user", userContent); err != nil {
		o.log.Warn("session append failed", "err", err)
	}
	if err := o.appendSession(ctx, msg.ChatID, "assistant", finalText); err != nil {
		o.log.Warn("session append failed", "err", err)
	}

	return o.send(ctx, msg, finalText)
}

// failTurn delivers a human-readable error as the turn's sole outbound
// message, per spec §7's propagation policy: internally-recoverable errors
// are converted to a user-facing message and the turn completes normally
// rather than leaking the error to the caller.
func (o *Orchestrator) failTurn(ctx context.Context, msg bus.Message, turn *TurnStats, text string) error {
	turn.Success = false
	return o.send(ctx, msg, text)
}

// llmErrorMessage implements spec §4.3's "LLM error taxonomy": an auth
// failure gets a dedicated remediation message, anything else gets a
// generic retry-later message.
func llmErrorMessage(err error) string {
	if errors.Is(err, mimierr.ErrLLMAuth) {
		return "抱歉，AI 服务的凭据似乎已过期或无效，请检查并更新 API 密钥配置。"
	}
	return "抱歉，AI 服务暂时不可用，请稍后再试。"
}

// sendWorkingStatus emits one best-effort, one-shot status message on a
// non-system channel's first ReAct iteration, per spec §4.3 step 3.
// Failures are swallowed: a missed status update never fails the turn.
func (o *Orchestrator) sendWorkingStatus(ctx context.Context, msg bus.Message) {
	phrase := workingPhrases[rand.Intn(len(workingPhrases))]
	status := bus.Message{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		MediaType: bus.MediaSystem,
		Content:   bus.NewStatusContent(phrase),
	}
	if err := o.deps.PushOutbound(ctx, status); err != nil {
		o.log.Debug("status message not delivered", "err", err)
	}
}

func (o *Orchestrator) send(ctx context.Context, msg bus.Message, text string) error {
	reply := bus.Message{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		MediaType: bus.MediaText,
		Content:   text,
	}
	if err := o.deps.PushOutbound(ctx, reply); err != nil {
		o.stats.RecordOutboundEnqueueFailure()
		return fmt.Errorf("orchestrator: push outbound: %w", err)
	}
	return nil
}

func (o *Orchestrator) appendSession(ctx context.Context, chatID, role, text string) error {
	if o.deps.Sessions == nil {
		return nil
	}
	return o.deps.Sessions.Append(ctx, chatID, role, text)
}

func (o *Orchestrator) recentHistoryText(ctx context.Context, chatID string) (string, error) {
	if o.deps.Sessions == nil {
		return "", nil
	}
	turns, err := o.deps.Sessions.History(ctx, chatID, o.cfg.SessionMaxMsgs)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	return b.String(), nil
}

// estimateContextBytes approximates the assembled request size, mirroring
// original_source's byte-counted (not token-counted) context budget.
func estimateContextBytes(messages []ports.LLMMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Role) + len(m.Content) + len(m.ToolCallID)
		for _, tc := range m.ToolCalls {
			total += len(tc.ID) + len(tc.Name) + len(tc.Arguments)
		}
	}
	return total
}
