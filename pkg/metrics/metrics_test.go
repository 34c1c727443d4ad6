package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordChatRequest("clara", 200, time.Second)
	m.RecordCompletion("gpt", "first", "ok", time.Second)
	m.RecordTokens("gpt", 1, 2)
	m.RecordToolCall("get_products", "ok", time.Millisecond)
	m.RecordRecorderFailure("analytics")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.RecordToolCall("build_quote", "ok", time.Millisecond)
	m.RecordToolCall("build_quote", "ok", time.Millisecond)
	m.RecordToolCall("build_quote", "error", time.Millisecond)
	m.RecordRecorderFailure("conversation")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("build_quote", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("build_quote", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recorderFailures.WithLabelValues("conversation")))
}

func TestHandlerExposesRegisteredSeries(t *testing.T) {
	m := New()
	m.RecordChatRequest("clara", 429, 10*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clara_chat_requests_total{agent="clara",status="429"} 1`)
}
