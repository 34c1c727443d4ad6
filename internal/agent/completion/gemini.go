package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	// Used when the agent configuration names no model.
	DefaultModel   string
	ThinkingBudget int32
}

// GeminiClient calls Gemini directly through the eino gemini chat model.
// Model, temperature, token budget and tools are applied per call.
type GeminiClient struct {
	chat    *gemini.ChatModel
	metrics *metrics.Metrics
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, m *metrics.Metrics) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	modelCfg := &gemini.Config{
		Client: client,
		Model:  geminiModelName(cfg.DefaultModel),
	}
	if cfg.ThinkingBudget > 0 {
		modelCfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(cfg.ThinkingBudget)}
	}
	chat, err := gemini.NewChatModel(ctx, modelCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return &GeminiClient{chat: chat, metrics: m}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (*schema.Message, error) {
	input := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		input = append(input, schema.SystemMessage(req.SystemPrompt))
	}
	input = append(input, req.Messages...)

	modelName := geminiModelName(req.Params.Model)
	opts := []einomodel.Option{einomodel.WithTemperature(req.Params.Temperature)}
	if modelName != "" {
		opts = append(opts, einomodel.WithModel(modelName))
	}
	if req.Params.MaxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(req.Params.MaxTokens))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, einomodel.WithTools(req.Tools))
	}

	start := time.Now()
	msg, err := c.chat.Generate(ctx, input, opts...)
	elapsed := time.Since(start)
	if err != nil {
		mapped := mapGeminiError(err)
		logx.Error().Err(err).Str("model", modelName).Str("turn", req.Turn).Dur("elapsed", elapsed).Msg("gemini call failed")
		c.metrics.RecordCompletion(modelName, req.Turn, outcomeOf(mapped), elapsed)
		return nil, mapped
	}
	if msg == nil {
		c.metrics.RecordCompletion(modelName, req.Turn, "error", elapsed)
		return nil, errx.Upstream(errors.New("gemini returned no message"))
	}
	c.metrics.RecordCompletion(modelName, req.Turn, "ok", elapsed)
	normalizeToolCallIDs(msg)

	if msg.ResponseMeta != nil {
		logUsage(c.metrics, modelName, req.Turn, msg.ResponseMeta.Usage)
	}
	return msg, nil
}

// geminiModelName drops a gateway provider prefix such as "google/".
func geminiModelName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func mapGeminiError(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	case errors.As(err, &apiErr):
		code = apiErr.Code
	}

	switch code {
	case http.StatusTooManyRequests:
		return errx.RateLimited(err)
	case http.StatusPaymentRequired:
		return errx.PaymentRequired(err)
	default:
		return errx.Upstream(err)
	}
}

var _ Completer = (*GeminiClient)(nil)
