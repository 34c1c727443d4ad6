// Package metrics holds the prometheus collectors for the chat service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	chatRequests       *prometheus.CounterVec
	chatDuration       *prometheus.HistogramVec
	completionRequests *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	completionTokens   *prometheus.CounterVec
	toolCalls          *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	recorderFailures   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clara_chat_requests_total",
			Help: "Chat requests by agent and response status.",
		}, []string{"agent", "status"}),
		chatDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clara_chat_request_duration_seconds",
			Help:    "End-to-end chat request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		completionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clara_completion_requests_total",
			Help: "Completion gateway calls by turn and outcome.",
		}, []string{"model", "turn", "outcome"}),
		completionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clara_completion_duration_seconds",
			Help:    "Completion gateway call duration.",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"model", "turn"}),
		completionTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clara_completion_tokens_total",
			Help: "Tokens consumed by completion calls.",
		}, []string{"model", "token_type"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clara_tool_calls_total",
			Help: "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clara_tool_call_duration_seconds",
			Help:    "Tool execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		recorderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clara_recorder_failures_total",
			Help: "Best-effort conversation/analytics writes that failed.",
		}, []string{"target"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordChatRequest(agent string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(agent, strconv.Itoa(status)).Inc()
	m.chatDuration.WithLabelValues(agent).Observe(d.Seconds())
}

func (m *Metrics) RecordCompletion(model, turn, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completionRequests.WithLabelValues(model, turn, outcome).Inc()
	m.completionDuration.WithLabelValues(model, turn).Observe(d.Seconds())
}

func (m *Metrics) RecordTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.completionTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.completionTokens.WithLabelValues(model, "completion").Add(float64(completion))
}

func (m *Metrics) RecordToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) RecordRecorderFailure(target string) {
	if m == nil {
		return
	}
	m.recorderFailures.WithLabelValues(target).Inc()
}
