// Package tools holds the closed set of operations the model may request and
// the dispatcher that runs them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

const (
	ToolGetPricingPlans = "get_pricing_plans"
	ToolGetProducts     = "get_products"
	ToolBuildQuote      = "build_quote"
	ToolCreateCheckout  = "create_checkout"
	ToolCaptureLead     = "capture_lead"
)

// Order the tools are offered to the model in.
var toolOrder = []string{
	ToolGetPricingPlans,
	ToolGetProducts,
	ToolBuildQuote,
	ToolCreateCheckout,
	ToolCaptureLead,
}

var validate = validator.New()

type Deps struct {
	Catalog  model.CatalogRepository
	Leads    model.LeadRepository
	Checkout CheckoutCreator
	// LeadSourceFallback is stored as source_page when the request carries no page.
	LeadSourceFallback string
	Metrics            *metrics.Metrics
}

// Dispatcher runs one named tool per call.
type Dispatcher struct {
	registry map[string]tool.InvokableTool
	metrics  *metrics.Metrics
}

func NewDispatcher(d Deps) *Dispatcher {
	fallback := d.LeadSourceFallback
	if fallback == "" {
		fallback = "clara-chat"
	}
	return &Dispatcher{
		registry: map[string]tool.InvokableTool{
			ToolGetPricingPlans: newPricingPlansTool(d.Catalog),
			ToolGetProducts:     newProductsTool(d.Catalog),
			ToolBuildQuote:      newBuildQuoteTool(d.Catalog),
			ToolCreateCheckout:  &checkoutTool{checkout: d.Checkout},
			ToolCaptureLead:     newCaptureLeadTool(d.Leads, fallback),
		},
		metrics: d.Metrics,
	}
}

// Infos returns the definitions offered to the model on the first turn.
func (d *Dispatcher) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(toolOrder))
	for _, name := range toolOrder {
		info, err := d.registry[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Execute runs the named tool with the model's JSON arguments and returns its JSON result.
// Unknown names fail with errx.ErrUnknownTool; failures inside a tool with errx.ErrToolExecution.
func (d *Dispatcher) Execute(ctx context.Context, name, arguments string) (string, error) {
	t, ok := d.registry[name]
	if !ok {
		logx.Warn().Str("tool", name).Msg("model requested unknown tool")
		d.metrics.RecordToolCall(name, "unknown", 0)
		return "", errx.UnknownTool(name)
	}

	args := sanitizeArguments(name, arguments)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{Name: name, Type: "Tool", Component: components.ComponentOfTool})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})

	start := time.Now()
	out, err := t.InvokableRun(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		callbacks.OnError(ctx, err)
		logx.Error().Err(err).Str("tool", name).Dur("elapsed", elapsed).Msg("tool execution failed")
		d.metrics.RecordToolCall(name, "error", elapsed)
		return "", errx.ToolExecution(name, err)
	}

	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	logx.Info().Str("tool", name).Dur("elapsed", elapsed).Int("result_bytes", len(out)).Msg("tool executed")
	d.metrics.RecordToolCall(name, "ok", elapsed)
	return out, nil
}

var argumentAliases = map[string]string{
	"plan_id":        "planId",
	"device_ids":     "deviceIds",
	"devices":        "deviceIds",
	"customer_name":  "customerName",
	"customer_email": "customerEmail",
	"interest_type":  "interestType",
}

// sanitizeArguments is best-effort: it never fails and keeps the original text
// when it is not a JSON object.
func sanitizeArguments(name, arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "{}"
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}

	for from, to := range argumentAliases {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
		}
	}

	for k, v := range m {
		switch vv := v.(type) {
		case string:
			m[k] = strings.TrimSpace(vv)
		case float64, bool:
			if k != "deviceIds" {
				m[k] = strings.TrimSpace(fmt.Sprint(vv))
			}
		}
	}

	if name == ToolBuildQuote || name == ToolCreateCheckout {
		if v, ok := m["deviceIds"]; ok {
			m["deviceIds"] = coerceIDList(v)
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// coerceIDList accepts a JSON array or a comma separated string.
func coerceIDList(v any) []string {
	ids := []string{}
	switch vv := v.(type) {
	case string:
		for _, s := range strings.Split(vv, ",") {
			if s = strings.TrimSpace(s); s != "" {
				ids = append(ids, s)
			}
		}
	case []any:
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				ids = append(ids, s)
			}
		}
	}
	return ids
}
