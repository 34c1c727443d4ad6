package model

import (
	"context"
	"time"
)

// TranscriptMessage is one persisted turn of a conversation log.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Set on the tool-execution marker only.
	Tool string `json:"tool,omitempty"`
}

// Conversation is one recorded exchange. Identical requests produce separate rows.
type Conversation struct {
	ID        string              `gorm:"primaryKey;type:uuid" json:"id"`
	AgentID   string              `gorm:"type:uuid;index;not null" json:"agent_id"`
	SessionID string              `gorm:"size:100;index;not null" json:"session_id"`
	UserID    *string             `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Messages  []TranscriptMessage `gorm:"type:jsonb;serializer:json" json:"messages"`
	Language  string              `gorm:"size:5" json:"language"`
	Page      string              `gorm:"size:255" json:"page"`
	ToolUsed  string              `gorm:"size:50" json:"tool_used,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func (Conversation) TableName() string { return "ai_conversations" }

// AgentAnalytics is the per (agent, calendar day) counter row.
type AgentAnalytics struct {
	AgentID               string    `gorm:"primaryKey;type:uuid" json:"agent_id"`
	Date                  time.Time `gorm:"primaryKey;type:date" json:"date"`
	TotalConversations    int       `json:"total_conversations"`
	SuccessfulResolutions int       `json:"successful_resolutions"`
}

func (AgentAnalytics) TableName() string { return "agent_analytics" }

// ================ Repositories ================

type AgentRepository interface {
	// FindByName returns ErrNotFound when no agent carries the name.
	FindByName(ctx context.Context, name string) (*Agent, error)
	// FindConfiguration returns ErrNotFound when the agent has no configuration row.
	FindConfiguration(ctx context.Context, agentID string) (*AgentConfiguration, error)
	// ActiveKnowledge returns active entries, priority descending then title.
	ActiveKnowledge(ctx context.Context, agentID string) ([]KnowledgeEntry, error)
}

type CatalogRepository interface {
	ActivePlans(ctx context.Context) ([]PricingPlan, error)
	ActiveDevices(ctx context.Context) ([]Product, error)
	// FindPlan returns ErrNotFound for unknown or inactive plans.
	FindPlan(ctx context.Context, id string) (*PricingPlan, error)
	// FindDevices returns the active devices among ids; unknown ids are absent from the result.
	FindDevices(ctx context.Context, ids []string) ([]Product, error)
}

type LeadRepository interface {
	Create(ctx context.Context, lead *Lead) error
}

type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
}

type AnalyticsRepository interface {
	// IncrementDaily adds one conversation and one resolution to the agent's row for day.
	IncrementDaily(ctx context.Context, agentID string, day time.Time) error
}

// ProfileLoader resolves everything the pipeline needs to know about an agent.
type ProfileLoader interface {
	Load(ctx context.Context, agentName string) (*AgentProfile, error)
}
