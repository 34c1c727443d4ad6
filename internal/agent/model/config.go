package model

import "time"

// ================ Config ================
type AgentConfig struct {
	Name string `envconfig:"AGENT_NAME" default:"clara"`
	// Used in responses when the agent row has no display name.
	DisplayName string `envconfig:"AGENT_DISPLAY_NAME" default:"Clara"`
}

type CompletionConfig struct {
	Provider      string `envconfig:"LLM_PROVIDER" default:"gateway"`
	GatewayURL    string `envconfig:"LLM_GATEWAY_URL" default:"https://ai.gateway.lovable.dev/v1"`
	APIKey        string `envconfig:"LLM_API_KEY"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	// Fallback Gemini model when the agent configuration names none.
	GeminiModel          string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiThinkingBudget int32         `envconfig:"GEMINI_THINKING_BUDGET" default:"0"`
	Timeout              time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"60s"`
}

type PipelineConfig struct {
	ToolTimeout   time.Duration `envconfig:"TOOL_TIMEOUT" default:"20s"`
	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	RecordTimeout time.Duration `envconfig:"RECORD_TIMEOUT" default:"5s"`
	// Zero leaves the knowledge block uncapped.
	KnowledgeMaxChars int `envconfig:"KNOWLEDGE_MAX_CHARS" default:"0"`
	// Most recent submitted messages sent to the model. Zero sends all of them.
	HistoryMaxMessages int `envconfig:"HISTORY_MAX_MESSAGES" default:"0"`
}

type CheckoutConfig struct {
	URL     string        `envconfig:"CHECKOUT_URL"`
	APIKey  string        `envconfig:"CHECKOUT_API_KEY"`
	Timeout time.Duration `envconfig:"CHECKOUT_TIMEOUT" default:"15s"`
}

type LeadConfig struct {
	SourceFallback string `envconfig:"LEAD_SOURCE_FALLBACK" default:"clara-chat"`
}

type CacheConfig struct {
	ProfileTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"0s"`
}
