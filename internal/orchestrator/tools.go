package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jholhewres/mimiclaw/internal/ports"
)

// toolTruncationSuffix and toolBudgetExceededMsg are the fixed literals spec
// §6's "message content conventions" requires, copied from
// original_source/main/agent/agent_loop.c's truncate_tool_output_if_needed
// and TOOL_BUDGET_EXCEEDED_MSG.
const (
	toolTruncationSuffix = "\n...[tool output truncated by budget]"
	toolBudgetExceededMsg = "Error: tool result budget exceeded on device"
)

// runToolCalls executes one iteration's tool calls against registry,
// enforcing TOOL_RESULT_MAX_BYTES per call and TOOL_RESULTS_TOTAL_MAX
// cumulative across the whole turn. Once the cumulative cap is crossed,
// remaining tool outputs in THIS iteration are replaced by the
// budget-exceeded marker rather than executed, per spec §8's boundary
// behavior; it reports exhausted=true the first time that happens.
func runToolCalls(ctx context.Context, registry ports.ToolRegistry, calls []ports.LLMToolCall, stats *TurnStats, resultMaxBytes, totalMaxBytes int) ([]ports.LLMMessage, bool) {
	out := make([]ports.LLMMessage, 0, len(calls))
	exhausted := false

	for _, call := range calls {
		if exhausted || stats.ToolBytesTotal >= totalMaxBytes {
			exhausted = true
			out = append(out, ports.LLMMessage{Role: "tool", Content: toolBudgetExceededMsg, ToolCallID: call.ID})
			continue
		}

		result, err := registry.Execute(ctx, call.Name, call.Arguments)
		if err != nil {
			result = fmt.Sprintf("error: %s", err.Error())
		}

		result = truncateToolOutput(result, resultMaxBytes)

		remaining := totalMaxBytes - stats.ToolBytesTotal
		if len(result) > remaining {
			result = toolBudgetExceededMsg
			exhausted = true
		} else {
			stats.ToolBytesTotal += len(result)
		}

		stats.ToolCalls++
		out = append(out, ports.LLMMessage{Role: "tool", Content: result, ToolCallID: call.ID})
	}

	return out, exhausted
}

// truncateToolOutput returns s unchanged if it is at most maxBytes, else a
// prefix of maxBytes-len(suffix) bytes plus the fixed suffix, so the
// resulting string's length never exceeds maxBytes unless maxBytes is
// shorter than the suffix itself, in which case the suffix alone is returned.
func truncateToolOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	keep := maxBytes - len(toolTruncationSuffix)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + toolTruncationSuffix
}

// toolsToLLM converts the registry's schema JSON into LLM tool definitions.
func toolsToLLM(registry ports.ToolRegistry) ([]ports.LLMToolDefinition, error) {
	raw, err := registry.ToolsJSON()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var defs []struct {
		Function struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse tools schema: %w", err)
	}
	out := make([]ports.LLMToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = ports.LLMToolDefinition{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			Parameters:  d.Function.Parameters,
		}
	}
	return out, nil
}
