package model

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatRequest is the inbound body of the chat endpoint.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	// Bounded by the session_id column width.
	SessionID string       `json:"sessionId" validate:"omitempty,max=100"`
	Context   *ChatContext `json:"context,omitempty"`
	// Unsupported codes fall back to English.
	Language string `json:"language"`
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant tool"`
	Content string `json:"content"`
}

type ChatContext struct {
	Page string `json:"page,omitempty"`
}

// Page returns the context page or "".
func (r *ChatRequest) Page() string {
	if r.Context == nil {
		return ""
	}
	return r.Context.Page
}

// ChatResponse carries either Agent, or CheckoutURL and OrderID after a checkout.
type ChatResponse struct {
	Message     string `json:"message"`
	Agent       string `json:"agent,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Session is the request-scoped identity tools need for side effects.
type Session struct {
	SessionID      string
	ConversationID string
	UserID         string
	Page           string
	Language       string
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Stage is a step of the request state machine.
type Stage string

const (
	StageReceived         Stage = "received"
	StageValidated        Stage = "validated"
	StageConfigLoaded     Stage = "config_loaded"
	StageFirstCompletion  Stage = "first_completion"
	StageToolExecuted     Stage = "tool_executed"
	StageSecondCompletion Stage = "second_completion"
	StageRecorded         Stage = "recorded"
	StageResponded        Stage = "responded"

	StageValidationFailed Stage = "validation_failed"
	StageConfigMissing    Stage = "config_missing"
	StageUpstreamFailed   Stage = "upstream_failed"
)

// Terminal reports whether no further transition follows s.
func (s Stage) Terminal() bool {
	switch s {
	case StageResponded, StageValidationFailed, StageConfigMissing, StageUpstreamFailed:
		return true
	}
	return false
}
