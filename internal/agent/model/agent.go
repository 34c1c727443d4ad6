package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentInactive AgentStatus = "inactive"
	AgentTraining AgentStatus = "training"
)

// Agent is a configured AI persona, e.g. "clara".
type Agent struct {
	ID          string      `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string      `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DisplayName string      `gorm:"size:100" json:"display_name"`
	Status      AgentStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Agent) TableName() string { return "ai_agents" }

// AgentConfiguration is the one-to-one behaviour config of an Agent.
type AgentConfiguration struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	AgentID       string    `gorm:"type:uuid;uniqueIndex;not null" json:"agent_id"`
	SystemPrompt  string    `gorm:"type:text" json:"system_prompt"`
	Model         string    `gorm:"size:100" json:"model"`
	Temperature   float32   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens"`
	ResponseStyle string    `gorm:"size:50" json:"response_style"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (AgentConfiguration) TableName() string { return "ai_agent_configurations" }

// Params returns the completion parameters with temperature clamped to [0,1].
func (c AgentConfiguration) Params() ModelParams {
	t := c.Temperature
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return ModelParams{Model: c.Model, Temperature: t, MaxTokens: c.MaxTokens}
}

// KnowledgeEntry is a titled, prioritised snippet inlined into the system prompt.
type KnowledgeEntry struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	AgentID   string    `gorm:"type:uuid;index;not null" json:"agent_id"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	Category  string    `gorm:"size:100" json:"category"`
	Priority  int       `gorm:"index" json:"priority"`
	Tags      []string  `gorm:"type:jsonb;serializer:json" json:"tags"`
	IsActive  bool      `gorm:"index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (KnowledgeEntry) TableName() string { return "ai_knowledge_base" }

// AgentProfile is everything the pipeline reads about an agent for one request.
type AgentProfile struct {
	Agent         Agent              `json:"agent"`
	Configuration AgentConfiguration `json:"configuration"`
	// Active entries only, priority descending.
	Knowledge []KnowledgeEntry `json:"knowledge"`
}

type ModelParams struct {
	Model       string
	Temperature float32
	MaxTokens   int
}
