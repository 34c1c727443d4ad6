package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	"github.com/clara-care/server/pkg/metrics"
)

type fakeChat struct {
	resp   *model.ChatResponse
	err    error
	req    *model.ChatRequest
	userID string
}

func (f *fakeChat) Handle(_ context.Context, req *model.ChatRequest, userID string) (*model.ChatResponse, error) {
	f.req = req
	f.userID = userID
	return f.resp, f.err
}

func newTestServer(chat ChatService, health HealthFunc) http.Handler {
	return New(Config{Addr: ":0"}, "clara", chat, health, metrics.New()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"messages":[{"role":"user","content":"hi"}],"sessionId":"s-1","language":"en"}`

func TestOptionsReturnsEmptyOK(t *testing.T) {
	h := newTestServer(&fakeChat{}, nil)

	for _, path := range []string{"/clara-chat", "/"} {
		rec := do(t, h, http.MethodOptions, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
	}
}

func TestPreflightAllowsAnyOrigin(t *testing.T) {
	h := newTestServer(&fakeChat{}, nil)

	rec := do(t, h, http.MethodOptions, "/clara-chat", "", map[string]string{
		"Origin":                         "https://care.example",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "content-type",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatSuccess(t *testing.T) {
	chat := &fakeChat{resp: &model.ChatResponse{Message: "Hello!", Agent: "Clara"}}
	h := newTestServer(chat, nil)

	rec := do(t, h, http.MethodPost, "/clara-chat", validBody, map[string]string{
		"Origin":     "https://care.example",
		userIDHeader: "9b2f8c8e-8d7f-4c54-9d0e-0d5c7a1f3e21",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"message":"Hello!","agent":"Clara"}`, rec.Body.String())
	assert.Equal(t, "s-1", chat.req.SessionID)
	assert.Equal(t, "9b2f8c8e-8d7f-4c54-9d0e-0d5c7a1f3e21", chat.userID)
}

func TestRootAliasServesChat(t *testing.T) {
	chat := &fakeChat{resp: &model.ChatResponse{Message: "ok", Agent: "Clara"}}
	h := newTestServer(chat, nil)

	rec := do(t, h, http.MethodPost, "/", validBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedUserIDIsIgnored(t *testing.T) {
	chat := &fakeChat{resp: &model.ChatResponse{Message: "ok"}}
	h := newTestServer(chat, nil)

	do(t, h, http.MethodPost, "/clara-chat", validBody, map[string]string{userIDHeader: "not-a-uuid"})
	assert.Empty(t, chat.userID)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{name: "undecodable body", body: `{"messages":`, status: http.StatusBadRequest, message: "invalid request body"},
		{name: "validation", body: validBody, err: errx.Validation("messages must be a non-empty array"), status: http.StatusBadRequest, message: "messages must be a non-empty array"},
		{name: "rate limited", body: validBody, err: errx.RateLimited(errors.New("429")), status: http.StatusTooManyRequests, message: errx.RateLimitedMessage},
		{name: "payment required", body: validBody, err: errx.PaymentRequired(errors.New("402")), status: http.StatusPaymentRequired, message: errx.PaymentRequiredMessage},
		{name: "not configured", body: validBody, err: errx.NotConfigured(errors.New("no agent")), status: http.StatusInternalServerError, message: errx.NotConfiguredMessage},
		{name: "unexpected", body: validBody, err: errors.New("boom"), status: http.StatusInternalServerError, message: errx.SystemErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeChat{err: tt.err}, nil)

			rec := do(t, h, http.MethodPost, "/clara-chat", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
			assert.Len(t, body, 1)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(&fakeChat{}, func(context.Context) error { return nil }), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestServer(&fakeChat{}, func(context.Context) error { return errors.New("db down") }), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	h := newTestServer(&fakeChat{resp: &model.ChatResponse{Message: "ok"}}, nil)
	do(t, h, http.MethodPost, "/clara-chat", validBody, nil)

	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clara_chat_requests_total{agent="clara",status="200"} 1`)
}
