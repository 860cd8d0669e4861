// Package mimierr defines the conceptual error kinds shared across the
// message bus, control plane, and turn orchestrator.
package mimierr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) at the detection site
// so callers can still errors.Is against the kind while keeping context.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrQueueFull          = errors.New("queue full")
	ErrTimeout            = errors.New("timeout")
	ErrContextBudget      = errors.New("context budget exceeded")
	ErrToolBudget         = errors.New("tool result budget exceeded")
	ErrIterationLimit     = errors.New("tool iteration limit reached")
	ErrLLMAuth            = errors.New("llm authentication failed")
	ErrLLMTransient       = errors.New("llm transient error")
	ErrLLMFatal           = errors.New("llm fatal error")
	ErrAlarmCapacity      = errors.New("alarm capacity exhausted")
	ErrTempRuleCapacity   = errors.New("temperature rule capacity exhausted")
	ErrNotFound           = errors.New("not found")
	ErrSendFailed         = errors.New("send failed")
)
