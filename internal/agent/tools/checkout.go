package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
)

const maxCheckoutResponseBytes = 1 << 20

// CheckoutRequest is the body sent to the checkout-session endpoint.
type CheckoutRequest struct {
	PlanID         string   `json:"planId"`
	Devices        []string `json:"devices"`
	CustomerEmail  string   `json:"customerEmail"`
	CustomerName   string   `json:"customerName"`
	SessionID      string   `json:"sessionId"`
	ConversationID string   `json:"conversationId"`
}

// CheckoutResult is the success shape of the endpoint's reply.
type CheckoutResult struct {
	CheckoutURL string `json:"checkoutUrl"`
	OrderID     string `json:"orderId"`
}

// ParseCheckoutResult reports whether raw carries both a checkout url and an order id.
func ParseCheckoutResult(raw string) (CheckoutResult, bool) {
	var r CheckoutResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return CheckoutResult{}, false
	}
	return r, r.CheckoutURL != "" && r.OrderID != ""
}

// CheckoutCreator creates an external payment session and returns the
// endpoint's JSON reply, success or error body alike.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (json.RawMessage, error)
}

// HTTPCheckoutClient posts to the checkout-session endpoint. Calls are not
// idempotent and are never retried.
type HTTPCheckoutClient struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPCheckoutClient(url, apiKey string, timeout time.Duration) *HTTPCheckoutClient {
	return &HTTPCheckoutClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCheckoutClient) CreateCheckout(ctx context.Context, in CheckoutRequest) (json.RawMessage, error) {
	if c.url == "" {
		return nil, errors.New("checkout endpoint is not configured")
	}
	if in.Devices == nil {
		in.Devices = []string{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCheckoutResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("checkout endpoint returned %d with a non-JSON body", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		logx.Warn().Int("status", resp.StatusCode).Str("session_id", in.SessionID).Msg("checkout endpoint returned an error body")
	}
	return json.RawMessage(raw), nil
}

type CreateCheckoutInput struct {
	PlanID        string   `json:"planId" validate:"required"`
	DeviceIDs     []string `json:"deviceIds,omitempty"`
	CustomerName  string   `json:"customerName" validate:"required"`
	CustomerEmail string   `json:"customerEmail" validate:"required,email"`
}

// checkoutTool hands the endpoint's reply to the model verbatim.
type checkoutTool struct {
	checkout CheckoutCreator
}

func (t *checkoutTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolCreateCheckout,
		Desc: "Create a payment checkout session for the chosen plan and devices. Only call this after the visitor confirmed the quote and gave their full name and email address. Returns a checkout url to share with the visitor.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"planId": {
				Type:     schema.String,
				Desc:     "Id of the chosen pricing plan.",
				Required: true,
			},
			"deviceIds": {
				Type:     schema.Array,
				Desc:     "Ids of the chosen add-on devices.",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"customerName": {
				Type:     schema.String,
				Desc:     "Full name of the customer.",
				Required: true,
			},
			"customerEmail": {
				Type:     schema.String,
				Desc:     "Email address the order confirmation is sent to.",
				Required: true,
			},
		}),
	}, nil
}

func (t *checkoutTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in CreateCheckoutInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", errx.InvalidArguments(err)
	}
	if err := validate.Struct(&in); err != nil {
		return "", errx.InvalidArguments(err)
	}
	if t.checkout == nil {
		return "", errors.New("checkout endpoint is not configured")
	}

	session, _ := model.SessionFromContext(ctx)
	raw, err := t.checkout.CreateCheckout(ctx, CheckoutRequest{
		PlanID:         in.PlanID,
		Devices:        in.DeviceIDs,
		CustomerEmail:  in.CustomerEmail,
		CustomerName:   in.CustomerName,
		SessionID:      session.SessionID,
		ConversationID: session.ConversationID,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var _ tool.InvokableTool = (*checkoutTool)(nil)
