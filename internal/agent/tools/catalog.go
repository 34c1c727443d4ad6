package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
)

// ===================================
// Pricing plans
// ===================================

type PricingPlansOutput struct {
	Plans []model.PricingPlan `json:"plans"`
}

func newPricingPlansTool(catalog model.CatalogRepository) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetPricingPlans,
			Desc: "Get all active care subscription plans with monthly prices, features and translations. Use this before recommending or quoting any plan. Never guess prices.",
		},
		func(ctx context.Context, _ *struct{}) (*PricingPlansOutput, error) {
			plans, err := catalog.ActivePlans(ctx)
			if err != nil {
				return nil, err
			}
			return &PricingPlansOutput{Plans: plans}, nil
		},
	)
}

// ===================================
// Devices
// ===================================

type ProductsOutput struct {
	Products []model.Product `json:"products"`
}

func newProductsTool(catalog model.CatalogRepository) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetProducts,
			Desc: "Get all active add-on devices (alarm buttons, fall sensors, GPS watches and similar) with monthly lease prices and translations. Use this when the visitor asks about devices or hardware.",
		},
		func(ctx context.Context, _ *struct{}) (*ProductsOutput, error) {
			products, err := catalog.ActiveDevices(ctx)
			if err != nil {
				return nil, err
			}
			return &ProductsOutput{Products: products}, nil
		},
	)
}

// ===================================
// Quote
// ===================================

type BuildQuoteInput struct {
	PlanID    string   `json:"planId" validate:"required"`
	DeviceIDs []string `json:"deviceIds,omitempty"`
}

func newBuildQuoteTool(catalog model.CatalogRepository) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolBuildQuote,
			Desc: "Compute the total monthly price of a plan plus optional add-on devices. Use the exact ids returned by get_pricing_plans and get_products.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"planId": {
					Type:     schema.String,
					Desc:     "Id of the chosen pricing plan.",
					Required: true,
				},
				"deviceIds": {
					Type:     schema.Array,
					Desc:     "Ids of the chosen add-on devices. Omit or leave empty for the plan only.",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
			}),
		},
		func(ctx context.Context, in *BuildQuoteInput) (*model.Quote, error) {
			if err := validate.Struct(in); err != nil {
				return nil, errx.InvalidArguments(err)
			}
			return buildQuote(ctx, catalog, in.PlanID, in.DeviceIDs)
		},
	)
}

// buildQuote prices planID plus deviceIDs. Unknown devices are left out of the quote.
func buildQuote(ctx context.Context, catalog model.CatalogRepository, planID string, deviceIDs []string) (*model.Quote, error) {
	plan, err := catalog.FindPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, errx.InvalidArguments(fmt.Errorf("plan %q not found", planID))
		}
		return nil, err
	}

	devices, err := catalog.FindDevices(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}
	if skipped := len(deviceIDs) - len(devices); skipped > 0 {
		logx.Warn().Str("plan_id", planID).Strs("device_ids", deviceIDs).Int("skipped", skipped).Msg("quote skipped unknown devices")
	}

	q := model.NewQuote(*plan, devices)
	return &q, nil
}
