// Package completion talks to the remote chat-completion backend.
package completion

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/clara-care/server/internal/agent/model"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

// Turn labels for logs and metrics.
const (
	TurnFirst  = "first"
	TurnSecond = "second"
)

// Request is one call to the completion backend. Tools is nil on the follow-up turn.
type Request struct {
	Turn         string
	SystemPrompt string
	Messages     []*schema.Message
	Params       model.ModelParams
	Tools        []*schema.ToolInfo
}

// Completer returns the assistant message for a request. Errors carry errx kinds:
// ErrRateLimited, ErrPaymentRequired or ErrUpstream. Calls are never retried.
type Completer interface {
	Complete(ctx context.Context, req Request) (*schema.Message, error)
}

// FirstToolCall returns the first tool call of msg. Any further calls are ignored and logged.
func FirstToolCall(msg *schema.Message) (schema.ToolCall, bool) {
	if msg == nil || len(msg.ToolCalls) == 0 {
		return schema.ToolCall{}, false
	}
	if extra := len(msg.ToolCalls) - 1; extra > 0 {
		ignored := make([]string, 0, extra)
		for _, tc := range msg.ToolCalls[1:] {
			ignored = append(ignored, tc.Function.Name)
		}
		logx.Warn().
			Str("tool", msg.ToolCalls[0].Function.Name).
			Int("ignored", extra).
			Strs("ignored_tools", ignored).
			Msg("model requested several tool calls, executing the first only")
	}
	normalizeToolCallIDs(msg)
	return msg.ToolCalls[0], true
}

// normalizeToolCallIDs gives every id-less tool call a call_<n> id so the
// follow-up tool message can reference it.
func normalizeToolCallIDs(msg *schema.Message) {
	if msg == nil {
		return
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", i+1)
		}
	}
}

// logUsage computes and logs the USD cost of one call.
func logUsage(m *metrics.Metrics, modelName, turn string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("model", modelName).
		Str("turn", turn).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	m.RecordTokens(modelName, usage.PromptTokens, usage.CompletionTokens)
}
