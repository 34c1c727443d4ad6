package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
)

type gateway struct {
	srv    *httptest.Server
	calls  atomic.Int32
	mu     sync.Mutex
	bodies []map[string]any
}

func (g *gateway) requests() []map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]any(nil), g.bodies...)
}

func newGateway(t *testing.T, status int, reply string) *gateway {
	t.Helper()
	g := &gateway{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		g.mu.Lock()
		g.bodies = append(g.bodies, body)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) client() *GatewayClient {
	return NewGatewayClient(g.srv.URL+"/v1", "key", 5*time.Second, nil)
}

func request(tools []*schema.ToolInfo) Request {
	return Request{
		Turn:         TurnFirst,
		SystemPrompt: "You are Clara.",
		Messages:     []*schema.Message{schema.UserMessage("What does it cost?")},
		Params:       model.ModelParams{Model: "google/gemini-2.5-flash", Temperature: 0.4, MaxTokens: 800},
		Tools:        tools,
	}
}

func quoteTool() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "build_quote",
		Desc: "quote",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"planId": {Type: schema.String, Required: true},
		}),
	}
}

const textReply = `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Our plans start at 29.95."},"finish_reason":"stop"}],"usage":{"prompt_tokens":120,"completion_tokens":12,"total_tokens":132}}`

const toolReply = `{"id":"2","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
 {"id":"call_1","type":"function","function":{"name":"build_quote","arguments":"{\"planId\":\"basic\"}"}},
 {"id":"call_2","type":"function","function":{"name":"get_products","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`

func TestGatewaySendsToolsAndSystemPrompt(t *testing.T) {
	g := newGateway(t, http.StatusOK, textReply)

	msg, err := g.client().Complete(context.Background(), request([]*schema.ToolInfo{
		quoteTool(),
		{Name: "get_products", Desc: "devices"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Our plans start at 29.95.", msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 132, msg.ResponseMeta.Usage.TotalTokens)

	bodies := g.requests()
	require.Len(t, bodies, 1)
	body := bodies[0]
	assert.Equal(t, "google/gemini-2.5-flash", body["model"])
	assert.EqualValues(t, 800, body["max_tokens"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "You are Clara.", msgs[0].(map[string]any)["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 2)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "build_quote", fn["name"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params["properties"], "planId")

	empty := tools[1].(map[string]any)["function"].(map[string]any)["parameters"].(map[string]any)
	assert.Equal(t, "object", empty["type"])
}

func TestGatewayOmitsToolsOnFollowUp(t *testing.T) {
	g := newGateway(t, http.StatusOK, textReply)

	req := request(nil)
	req.Turn = TurnSecond
	_, err := g.client().Complete(context.Background(), req)
	require.NoError(t, err)

	bodies := g.requests()
	require.Len(t, bodies, 1)
	assert.NotContains(t, bodies[0], "tools")
}

func TestGatewayReturnsToolCalls(t *testing.T) {
	g := newGateway(t, http.StatusOK, toolReply)

	msg, err := g.client().Complete(context.Background(), request([]*schema.ToolInfo{quoteTool()}))
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)

	tc, ok := FirstToolCall(msg)
	require.True(t, ok)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "build_quote", tc.Function.Name)
	assert.JSONEq(t, `{"planId":"basic"}`, tc.Function.Arguments)
}

func TestGatewayErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
		code   int
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`, kind: errx.ErrRateLimited, code: 429},
		{name: "payment required", status: http.StatusPaymentRequired, body: `{"error":{"message":"out of credits"}}`, kind: errx.ErrPaymentRequired, code: 402},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`, kind: errx.ErrUpstream, code: 500},
		{name: "non json error", status: http.StatusTooManyRequests, body: `too many requests`, kind: errx.ErrRateLimited, code: 429},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, tt.status, tt.body)
			_, err := g.client().Complete(context.Background(), request(nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.code, errx.StatusOf(err))
			assert.Equal(t, int32(1), g.calls.Load(), "no retries")
		})
	}
}

func TestGatewayEmptyChoices(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"id":"3","choices":[]}`)
	_, err := g.client().Complete(context.Background(), request(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrUpstream)
}

func TestGatewayTransportFailure(t *testing.T) {
	c := NewGatewayClient("http://127.0.0.1:1/v1", "key", time.Second, nil)
	_, err := c.Complete(context.Background(), request(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrUpstream)
}

func TestToOpenAIMessagesKeepsToolCallID(t *testing.T) {
	idx := 0
	msgs := toOpenAIMessages("", []*schema.Message{
		schema.UserMessage("quote please"),
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Index: &idx, ID: "call_1", Function: schema.FunctionCall{Name: "build_quote", Arguments: "{}"}}}},
		schema.ToolMessage(`{"totalMonthly":29.95}`, "call_1"),
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
}

func TestFirstToolCall(t *testing.T) {
	_, ok := FirstToolCall(nil)
	assert.False(t, ok)

	_, ok = FirstToolCall(schema.AssistantMessage("hello", nil))
	assert.False(t, ok)

	msg := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "a", Function: schema.FunctionCall{Name: "get_products"}},
		{ID: "b", Function: schema.FunctionCall{Name: "capture_lead"}},
	})
	tc, ok := FirstToolCall(msg)
	require.True(t, ok)
	assert.Equal(t, "a", tc.ID)
}

func TestGeminiModelName(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", geminiModelName("google/gemini-2.5-flash"))
	assert.Equal(t, "gemini-2.5-pro", geminiModelName("gemini-2.5-pro"))
}

func TestGatewaySendsZeroTemperature(t *testing.T) {
	g := newGateway(t, http.StatusOK, textReply)

	req := request(nil)
	req.Params.Temperature = 0
	_, err := g.client().Complete(context.Background(), req)
	require.NoError(t, err)

	body := g.requests()[0]
	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestGatewayFillsMissingToolCallID(t *testing.T) {
	g := newGateway(t, http.StatusOK, `{"id":"4","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
 {"type":"function","function":{"name":"build_quote","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`)

	msg, err := g.client().Complete(context.Background(), request([]*schema.ToolInfo{quoteTool()}))
	require.NoError(t, err)

	tc, ok := FirstToolCall(msg)
	require.True(t, ok)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
}

func TestFirstToolCallNormalizesBlankIDs(t *testing.T) {
	msg := schema.AssistantMessage("", []schema.ToolCall{
		{Function: schema.FunctionCall{Name: "get_products"}},
		{ID: "keep", Function: schema.FunctionCall{Name: "capture_lead"}},
		{Function: schema.FunctionCall{Name: "build_quote"}},
	})
	tc, ok := FirstToolCall(msg)
	require.True(t, ok)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "keep", msg.ToolCalls[1].ID)
	assert.Equal(t, "call_3", msg.ToolCalls[2].ID)
}
