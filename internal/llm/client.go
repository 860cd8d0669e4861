package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/mimiclaw/internal/mimierr"
)

// Client talks to any OpenAI-compatible chat-completions endpoint (OpenAI,
// Anthropic-via-proxy, GLM/api.z.ai, local inference servers), grounded on
// the teacher's LLMClient.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	fallbackModels []string
	httpClient     *http.Client
	logger         *slog.Logger
}

// New constructs a Client. fallbackModels are tried in order if model fails
// with a transient error.
func New(baseURL, apiKey, model string, fallbackModels []string, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		model:          model,
		fallbackModels: fallbackModels,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
		logger:         logger.With("component", "llm"),
	}
}

type wireRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete issues one chat-completions call against the configured model,
// falling back to fallbackModels in order on a transient error.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	models := append([]string{c.model}, c.fallbackModels...)
	var lastErr error
	for i, model := range models {
		resp, err := c.completeWithModel(ctx, model, messages, tools)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !mimierrIsTransient(err) {
			return nil, err
		}
		c.logger.Warn("llm call failed, trying fallback", "model", model, "fallback_index", i, "error", err)
	}
	return nil, lastErr
}

func mimierrIsTransient(err error) bool {
	return errors.Is(err, mimierr.ErrLLMTransient) || errors.Is(err, mimierr.ErrTimeout)
}

func (c *Client) completeWithModel(ctx context.Context, model string, messages []Message, tools []ToolDefinition) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", mimierr.ErrLLMAuth)
	}

	reqBody := wireRequest{Model: model, Messages: messages, Tools: tools}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mimierr.ErrLLMTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w", err)
	}
	duration := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d: %s", mimierr.ErrLLMAuth, resp.StatusCode, truncate(string(respBytes), 200))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d: %s", mimierr.ErrLLMTransient, resp.StatusCode, truncate(string(respBytes), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", mimierr.ErrLLMFatal, resp.StatusCode, truncate(string(respBytes), 200))
	}

	var wire wireResponse
	if err := json.Unmarshal(respBytes, &wire); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", mimierr.ErrLLMFatal, err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("%w: %s", mimierr.ErrLLMFatal, wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", mimierr.ErrLLMFatal)
	}

	choice := wire.Choices[0]
	out := &Response{
		Content:   strings.TrimSpace(choice.Message.Content),
		ToolCalls: choice.Message.ToolCalls,
		ModelUsed: model,
		Usage: Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}

	c.logger.Info("llm completion", "model", model, "duration_ms", duration.Milliseconds(),
		"prompt_tokens", out.Usage.PromptTokens, "completion_tokens", out.Usage.CompletionTokens,
		"tool_calls", len(out.ToolCalls))
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
