package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/clara-care/server/pkg/metrics"
)

const (
	userIDHeader   = "X-User-Id"
	maxRequestBody = 1 << 20
)

type chatHandler struct {
	agent   string
	chat    ChatService
	metrics *metrics.Metrics
}

func (h *chatHandler) serveChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { h.metrics.RecordChatRequest(h.agent, status, time.Since(start)) }()

	var req model.ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		logx.Warn().Err(err).Msg("failed to decode chat request")
		status = http.StatusBadRequest
		writeJSON(w, status, model.ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.chat.Handle(r.Context(), &req, userID(r))
	if err != nil {
		status = errx.StatusOf(err)
		if status >= http.StatusInternalServerError {
			logx.Error().Err(err).Str("session_id", req.SessionID).Msg("chat request failed")
		}
		writeJSON(w, status, model.ErrorResponse{Error: errx.MessageOf(err)})
		return
	}
	writeJSON(w, status, resp)
}

// userID returns the upstream-authenticated caller id, or "" when absent or malformed.
func userID(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		logx.Warn().Str("user_id", raw).Msg("ignoring malformed user id header")
		return ""
	}
	return id.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
