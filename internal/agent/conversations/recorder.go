package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clara-care/server/internal/agent/model"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

// Exchange is one completed request/reply cycle.
type Exchange struct {
	ConversationID string
	AgentID        string
	Session        model.Session
	Messages       []model.ChatMessage
	// FirstReply is the text of the tool-calling turn, usually empty.
	FirstReply string
	// ToolName is empty when the model answered without a tool.
	ToolName string
	Reply    string
}

// Recorder persists exchanges and bumps the agent's daily counters.
type Recorder struct {
	conversations model.ConversationRepository
	analytics     model.AnalyticsRepository
	timeout       time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewRecorder(conversations model.ConversationRepository, analytics model.AnalyticsRepository, timeout time.Duration, m *metrics.Metrics) *Recorder {
	return &Recorder{
		conversations: conversations,
		analytics:     analytics,
		timeout:       timeout,
		metrics:       m,
		now:           time.Now,
	}
}

// Record writes one conversation row and increments the day's analytics row.
// It runs detached from ctx cancellation, bounded by the recorder timeout, and
// attempts both writes even when the first fails. Identical exchanges are
// recorded as separate rows.
func (r *Recorder) Record(ctx context.Context, ex Exchange) error {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	now := r.now()
	var errs []error

	conv := &model.Conversation{
		ID:        ex.ConversationID,
		AgentID:   ex.AgentID,
		SessionID: ex.Session.SessionID,
		UserID:    optionalID(ex.Session.UserID),
		Messages:  Transcript(ex.Messages, ex.FirstReply, ex.ToolName, ex.Reply),
		Language:  ex.Session.Language,
		Page:      ex.Session.Page,
		ToolUsed:  ex.ToolName,
		CreatedAt: now,
	}
	if err := r.conversations.Create(ctx, conv); err != nil {
		r.metrics.RecordRecorderFailure("conversation")
		logx.Error().Err(err).Str("conversation_id", ex.ConversationID).Str("session_id", ex.Session.SessionID).Msg("failed to record conversation")
		errs = append(errs, fmt.Errorf("record conversation: %w", err))
	}

	if err := r.analytics.IncrementDaily(ctx, ex.AgentID, now); err != nil {
		r.metrics.RecordRecorderFailure("analytics")
		logx.Error().Err(err).Str("agent_id", ex.AgentID).Msg("failed to update agent analytics")
		errs = append(errs, fmt.Errorf("record analytics: %w", err))
	}

	return errors.Join(errs...)
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
