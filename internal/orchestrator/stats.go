package orchestrator

import "sync"

// TurnStats is the per-run accumulator for one turn's resource usage,
// mirroring original_source's agent_stats_state_t fields. No hidden
// globals: callers own a *TurnStats value for the turn's local state.
type TurnStats struct {
	LLMCalls          int
	LLMMs             int64
	ToolCalls         int
	ToolsMs           int64
	ContextMs         int64
	OutboundMs        int64
	ContextBytes      int
	ToolBytesTotal    int
	Success           bool
	HitContextBudget  bool
	HitToolBudget     bool
	HitIterationLimit bool
	HitTimeout        bool
	HitLLMError       bool
}

// Failed reports whether this turn ended in any of the non-success terminal
// states that spec §4.3's finalization routes to a human-readable error
// message instead of the LLM's final text.
func (t TurnStats) Failed() bool {
	return !t.Success && (t.HitContextBudget || t.HitToolBudget || t.HitIterationLimit || t.HitTimeout || t.HitLLMError)
}

// Stats is the process-wide, lock-protected lifetime counters surfaced via
// orchestrator::stats, distinct from a single turn's TurnStats. Field names
// mirror spec §3's "Turn statistics" entity.
type Stats struct {
	mu sync.Mutex

	turns                uint64
	successTurns         uint64
	failedTurns          uint64
	timeoutHits          uint64
	contextBudgetHits    uint64
	toolBudgetHits       uint64
	iterationLimitHits   uint64
	llmErrorTurns        uint64
	outboundEnqueueFails uint64
	outboundSendFailures uint64

	contextMsSum   int64
	llmMsSum       int64
	toolsMsSum     int64
	outboundMsSum  int64
}

// RecordTurn folds one completed turn's TurnStats into the lifetime counters.
func (s *Stats) RecordTurn(t TurnStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	if t.Success {
		s.successTurns++
	}
	if t.Failed() {
		s.failedTurns++
	}
	if t.HitContextBudget {
		s.contextBudgetHits++
	}
	if t.HitToolBudget {
		s.toolBudgetHits++
	}
	if t.HitIterationLimit {
		s.iterationLimitHits++
	}
	if t.HitTimeout {
		s.timeoutHits++
	}
	if t.HitLLMError {
		s.llmErrorTurns++
	}
	s.contextMsSum += t.ContextMs
	s.llmMsSum += t.LLMMs
	s.toolsMsSum += t.ToolsMs
	s.outboundMsSum += t.OutboundMs
}

// RecordOutboundEnqueueFailure increments the bus-push failure counter,
// per spec §4.1's "enqueue failures increment the orchestrator's
// outbound_enqueue_failures".
func (s *Stats) RecordOutboundEnqueueFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboundEnqueueFails++
}

// RecordOutboundSendFailure increments the egress-failure counter, exposed
// via orchestrator::record_outbound_send_failure.
func (s *Stats) RecordOutboundSendFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboundSendFailures++
}

// Snapshot is a read-only copy of the lifetime counters.
type Snapshot struct {
	Turns                uint64
	SuccessTurns         uint64
	FailedTurns          uint64
	TimeoutHits          uint64
	ContextBudgetHits    uint64
	ToolBudgetHits       uint64
	IterationLimitHits   uint64
	LLMErrorTurns        uint64
	OutboundEnqueueFails uint64
	OutboundSendFailures uint64

	ContextMsSum  int64
	LLMMsSum      int64
	ToolsMsSum    int64
	OutboundMsSum int64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Turns:                s.turns,
		SuccessTurns:         s.successTurns,
		FailedTurns:          s.failedTurns,
		TimeoutHits:          s.timeoutHits,
		ContextBudgetHits:    s.contextBudgetHits,
		ToolBudgetHits:       s.toolBudgetHits,
		IterationLimitHits:   s.iterationLimitHits,
		LLMErrorTurns:        s.llmErrorTurns,
		OutboundEnqueueFails: s.outboundEnqueueFails,
		OutboundSendFailures: s.outboundSendFailures,
		ContextMsSum:         s.contextMsSum,
		LLMMsSum:             s.llmMsSum,
		ToolsMsSum:           s.toolsMsSum,
		OutboundMsSum:        s.outboundMsSum,
	}
}
