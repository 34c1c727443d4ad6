// Package orchestrator runs the per-request chat loop: load the agent, compose
// the prompt, ask the model, run at most one tool, ask again, record, reply.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clara-care/server/internal/agent/completion"
	"github.com/clara-care/server/internal/agent/conversations"
	"github.com/clara-care/server/internal/agent/model"
	"github.com/clara-care/server/internal/agent/prompts"
	"github.com/clara-care/server/internal/agent/tools"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
)

type ToolDispatcher interface {
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	Execute(ctx context.Context, name, arguments string) (string, error)
}

type ExchangeRecorder interface {
	Record(ctx context.Context, ex conversations.Exchange) error
}

// Config holds everything the pipeline needs. Zero timeouts mean no deadline.
type Config struct {
	AgentName string
	// DisplayName is returned when the agent row has none.
	DisplayName string

	Profiles  model.ProfileLoader
	Completer completion.Completer
	Tools     ToolDispatcher
	Recorder  ExchangeRecorder

	CompletionTimeout  time.Duration
	ToolTimeout        time.Duration
	StoreTimeout       time.Duration
	KnowledgeMaxChars  int
	HistoryMaxMessages int

	NewID func() string
}

// Pipeline is safe for concurrent use; every call owns its own state.
type Pipeline struct {
	cfg      Config
	validate *validator.Validate
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile loader is nil")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is nil")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool dispatcher is nil")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("recorder is nil")
	}
	if cfg.AgentName == "" {
		return nil, fmt.Errorf("agent name is empty")
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Pipeline{cfg: cfg, validate: validator.New()}, nil
}

// Handle runs one exchange. userID is the caller's authenticated id, or "".
func (p *Pipeline) Handle(ctx context.Context, req *model.ChatRequest, userID string) (*model.ChatResponse, error) {
	r := &run{stage: model.StageReceived, agent: p.cfg.AgentName}
	r.log()

	if err := p.validateRequest(req); err != nil {
		r.fail(model.StageValidationFailed, err)
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = p.cfg.NewID()
	}
	session := model.Session{
		SessionID:      req.SessionID,
		ConversationID: p.cfg.NewID(),
		UserID:         userID,
		Page:           req.Page(),
		Language:       prompts.LanguageCode(req.Language),
	}
	r.sessionID = session.SessionID
	ctx = model.WithSession(ctx, session)
	r.to(model.StageValidated)

	profile, err := p.loadProfile(ctx)
	if err != nil {
		r.fail(model.StageConfigMissing, err)
		return nil, err
	}
	r.to(model.StageConfigLoaded)

	systemPrompt, err := prompts.Compose(ctx, prompts.Input{
		Configuration:     profile.Configuration,
		Knowledge:         profile.Knowledge,
		Page:              session.Page,
		Language:          session.Language,
		MaxKnowledgeChars: p.cfg.KnowledgeMaxChars,
	})
	if err != nil {
		r.fail(model.StageConfigMissing, err)
		return nil, err
	}

	infos, err := p.cfg.Tools.Infos(ctx)
	if err != nil {
		r.fail(model.StageConfigMissing, err)
		return nil, err
	}

	params := profile.Configuration.Params()
	history := conversations.BuildHistory(req.Messages, p.cfg.HistoryMaxMessages)

	first, err := p.complete(ctx, completion.Request{
		Turn:         completion.TurnFirst,
		SystemPrompt: systemPrompt,
		Messages:     history,
		Params:       params,
		Tools:        infos,
	})
	if err != nil {
		r.fail(model.StageUpstreamFailed, err)
		return nil, err
	}
	r.to(model.StageFirstCompletion)

	reply := first.Content
	var toolName, firstReply string
	var checkout tools.CheckoutResult
	var checkoutOK bool

	if call, ok := completion.FirstToolCall(first); ok {
		toolName = call.Function.Name
		firstReply = first.Content
		result := p.executeTool(ctx, call)
		r.to(model.StageToolExecuted)

		if toolName == tools.ToolCreateCheckout {
			checkout, checkoutOK = tools.ParseCheckoutResult(result)
		}

		followUp := make([]*schema.Message, 0, len(history)+2)
		followUp = append(followUp, history...)
		followUp = append(followUp,
			&schema.Message{Role: schema.Assistant, Content: first.Content, ToolCalls: []schema.ToolCall{call}},
			schema.ToolMessage(result, call.ID),
		)

		second, err := p.complete(ctx, completion.Request{
			Turn:         completion.TurnSecond,
			SystemPrompt: systemPrompt,
			Messages:     followUp,
			Params:       params,
		})
		if err != nil {
			r.fail(model.StageUpstreamFailed, err)
			return nil, err
		}
		reply = second.Content
		r.to(model.StageSecondCompletion)
	}

	if err := p.cfg.Recorder.Record(ctx, conversations.Exchange{
		ConversationID: session.ConversationID,
		AgentID:        profile.Agent.ID,
		Session:        session,
		Messages:       req.Messages,
		FirstReply:     firstReply,
		ToolName:       toolName,
		Reply:          reply,
	}); err != nil {
		logx.Error().Err(err).Str("session_id", session.SessionID).Str("conversation_id", session.ConversationID).Msg("recording failed, returning reply anyway")
	} else {
		r.to(model.StageRecorded)
	}

	resp := &model.ChatResponse{Message: reply}
	if checkoutOK {
		resp.CheckoutURL = checkout.CheckoutURL
		resp.OrderID = checkout.OrderID
	} else {
		resp.Agent = p.displayName(profile)
	}
	r.to(model.StageResponded)
	return resp, nil
}

func (p *Pipeline) validateRequest(req *model.ChatRequest) error {
	if req == nil {
		return errx.Validation("messages are required")
	}
	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errx.Validation(validationMessage(verrs[0]))
		}
		return errx.Validation("invalid request")
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Messages":
		return "messages must be a non-empty array"
	case "Role":
		return "message role must be one of user, assistant, tool"
	case "SessionID":
		return "sessionId is too long"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func (p *Pipeline) loadProfile(ctx context.Context) (*model.AgentProfile, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.cfg.Profiles.Load(ctx, p.cfg.AgentName)
}

func (p *Pipeline) complete(ctx context.Context, req completion.Request) (*schema.Message, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.CompletionTimeout)
	defer cancel()
	return p.cfg.Completer.Complete(ctx, req)
}

// executeTool never fails: tool errors become a structured result for the model.
func (p *Pipeline) executeTool(ctx context.Context, call schema.ToolCall) string {
	ctx, cancel := withTimeout(ctx, p.cfg.ToolTimeout)
	defer cancel()

	name := call.Function.Name
	out, err := p.cfg.Tools.Execute(ctx, name, call.Function.Arguments)
	if err == nil {
		return out
	}
	logx.Warn().Err(err).Str("tool", name).Msg("tool failed, handing error back to the model")
	return toolErrorResult(name, err)
}

type toolError struct {
	Error string `json:"error"`
	Tool  string `json:"tool"`
}

// toolErrorResult tells the model what went wrong without leaking internals:
// only argument problems and unknown tool names are passed through verbatim.
func toolErrorResult(name string, err error) string {
	msg := "tool execution failed"
	if detail, ok := errx.MessageOfKind(err, errx.ErrValidation); ok {
		msg = detail
	} else if errors.Is(err, errx.ErrUnknownTool) {
		msg = fmt.Sprintf("unknown tool %q", name)
	} else if errors.Is(err, errx.ErrPersistence) {
		msg = errx.DatabaseErrorMessage
	}
	b, mErr := json.Marshal(toolError{Error: msg, Tool: name})
	if mErr != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(b)
}

func (p *Pipeline) displayName(profile *model.AgentProfile) string {
	if profile.Agent.DisplayName != "" {
		return profile.Agent.DisplayName
	}
	return p.cfg.DisplayName
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// run tracks the state machine of one request for logging.
type run struct {
	stage     model.Stage
	agent     string
	sessionID string
	started   time.Time
}

func (r *run) log() {
	if r.started.IsZero() {
		r.started = time.Now()
	}
	logx.Debug().
		Str("stage", string(r.stage)).
		Str("agent", r.agent).
		Str("session_id", r.sessionID).
		Dur("elapsed", time.Since(r.started)).
		Msg("chat stage")
}

func (r *run) to(s model.Stage) {
	r.stage = s
	r.log()
}

func (r *run) fail(s model.Stage, err error) {
	r.stage = s
	logx.Warn().
		Err(err).
		Str("stage", string(s)).
		Str("agent", r.agent).
		Str("session_id", r.sessionID).
		Int("status", errx.StatusOf(err)).
		Msg("chat request failed")
}
