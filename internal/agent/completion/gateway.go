package completion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

// GatewayClient calls an OpenAI-compatible chat-completion gateway.
type GatewayClient struct {
	client  *openai.Client
	metrics *metrics.Metrics
}

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, m *metrics.Metrics) *GatewayClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &GatewayClient{client: openai.NewClientWithConfig(cfg), metrics: m}
}

func (c *GatewayClient) Complete(ctx context.Context, req Request) (*schema.Message, error) {
	// go-openai drops a zero temperature; the gateway would then use its own default.
	temperature := req.Params.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	body := openai.ChatCompletionRequest{
		Model:       req.Params.Model,
		Messages:    toOpenAIMessages(req.SystemPrompt, req.Messages),
		Temperature: temperature,
		MaxTokens:   req.Params.MaxTokens,
	}
	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return nil, errx.Upstream(err)
		}
		body.Tools = tools
	}

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{Name: "gateway", Type: "OpenAICompatible", Component: components.ComponentOfChatModel})
	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{
		Messages: req.Messages,
		Tools:    req.Tools,
		Config: &einomodel.Config{
			Model:       req.Params.Model,
			MaxTokens:   req.Params.MaxTokens,
			Temperature: req.Params.Temperature,
		},
	})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, body)
	elapsed := time.Since(start)
	if err != nil {
		callbacks.OnError(ctx, err)
		mapped := mapGatewayError(err)
		logx.Error().Err(err).Str("model", req.Params.Model).Str("turn", req.Turn).Dur("elapsed", elapsed).Msg("completion gateway call failed")
		c.metrics.RecordCompletion(req.Params.Model, req.Turn, outcomeOf(mapped), elapsed)
		return nil, mapped
	}
	if len(resp.Choices) == 0 {
		c.metrics.RecordCompletion(req.Params.Model, req.Turn, "error", elapsed)
		return nil, errx.Upstream(errors.New("completion gateway returned no choices"))
	}
	c.metrics.RecordCompletion(req.Params.Model, req.Turn, "ok", elapsed)

	choice := resp.Choices[0]
	msg := fromOpenAIMessage(choice.Message)
	normalizeToolCallIDs(msg)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	logUsage(c.metrics, req.Params.Model, req.Turn, msg.ResponseMeta.Usage)
	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message: msg,
		TokenUsage: &einomodel.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	})
	return msg, nil
}

// mapGatewayError turns 429 and 402 into their own kinds and everything else into ErrUpstream.
func mapGatewayError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return errx.RateLimited(err)
	case http.StatusPaymentRequired:
		return errx.PaymentRequired(err)
	default:
		return errx.Upstream(err)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, errx.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, errx.ErrPaymentRequired):
		return "payment_required"
	default:
		return "error"
	}
}

func toOpenAIMessages(systemPrompt string, msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range msgs {
		if m == nil {
			continue
		}
		om := openai.ChatCompletionMessage{
			Role:       toOpenAIRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAIRole(r schema.RoleType) string {
	switch r {
	case schema.System:
		return openai.ChatMessageRoleSystem
	case schema.Assistant:
		return openai.ChatMessageRoleAssistant
	case schema.Tool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant, Content: m.Content}
	for i, tc := range m.ToolCalls {
		idx := i
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			Index: &idx,
			ID:    tc.ID,
			Type:  string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}

var emptyObjectSchema = map[string]any{"type": "object", "properties": map[string]any{}}

func toOpenAITools(infos []*schema.ToolInfo) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(infos))
	for _, info := range infos {
		var params any = emptyObjectSchema
		if info.ParamsOneOf != nil {
			s, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			if s != nil {
				params = s
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        info.Name,
				Description: info.Desc,
				Parameters:  params,
			},
		})
	}
	return tools, nil
}

var _ Completer = (*GatewayClient)(nil)
