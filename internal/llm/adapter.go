package llm

import (
	"context"

	"github.com/jholhewres/mimiclaw/internal/ports"
)

// PortAdapter wraps a Client to satisfy ports.LLM, so the orchestrator can
// depend on the port's method shape rather than this package's concrete
// wire types.
type PortAdapter struct {
	Client *Client
}

func (a PortAdapter) Complete(ctx context.Context, messages []ports.LLMMessage, tools []ports.LLMToolDefinition) (ports.LLMResponse, error) {
	wireMessages := make([]Message, len(messages))
	for i, m := range messages {
		wireMessages[i] = Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wireMessages[i].ToolCalls = append(wireMessages[i].ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
	}

	wireTools := make([]ToolDefinition, len(tools))
	for i, td := range tools {
		wireTools[i] = ToolDefinition{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		}
	}

	resp, err := a.Client.Complete(ctx, wireMessages, wireTools)
	if err != nil {
		return ports.LLMResponse{}, err
	}

	out := ports.LLMResponse{
		Content:          resp.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		ModelUsed:        resp.ModelUsed,
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ports.LLMToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
