package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
)

type CaptureLeadInput struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone,omitempty"`
	InterestType string `json:"interestType" validate:"required"`
	Message      string `json:"message,omitempty"`
}

type CaptureLeadOutput struct {
	Success bool   `json:"success"`
	LeadID  string `json:"leadId"`
}

func newCaptureLeadTool(leads model.LeadRepository, sourceFallback string) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCaptureLead,
			Desc: "Save the visitor's contact details so the sales team can follow up. Use when the visitor wants a call back, more information by email, or an institutional offer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"name": {
					Type:     schema.String,
					Desc:     "Full name of the visitor.",
					Required: true,
				},
				"email": {
					Type:     schema.String,
					Desc:     "Email address of the visitor.",
					Required: true,
				},
				"phone": {
					Type: schema.String,
					Desc: "Phone number, if given.",
				},
				"interestType": {
					Type:     schema.String,
					Desc:     "What the visitor is interested in.",
					Enum:     []string{"personal", "family", "institutional", "nurse", "other"},
					Required: true,
				},
				"message": {
					Type: schema.String,
					Desc: "Short summary of the visitor's question or situation.",
				},
			}),
		},
		func(ctx context.Context, in *CaptureLeadInput) (*CaptureLeadOutput, error) {
			if err := validate.Struct(in); err != nil {
				return nil, errx.InvalidArguments(err)
			}

			session, _ := model.SessionFromContext(ctx)
			source := session.Page
			if source == "" {
				source = sourceFallback
			}

			lead := &model.Lead{
				ID:           uuid.NewString(),
				Name:         in.Name,
				Email:        in.Email,
				Phone:        optional(in.Phone),
				InterestType: in.InterestType,
				Message:      optional(in.Message),
				SourcePage:   source,
				SessionID:    session.SessionID,
				Status:       model.LeadNew,
			}
			if err := leads.Create(ctx, lead); err != nil {
				return nil, err
			}
			return &CaptureLeadOutput{Success: true, LeadID: lead.ID}, nil
		},
	)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
