package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/engine"
	"github.com/eakyurek/context-search/internal/models"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	req, err := h.parseSearchRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	resp, err := h.engine.Search(ctx, req)
	if err != nil {
		if engine.KindOf(err) == engine.KindInvalidQuery {
			h.writeError(w, http.StatusBadRequest, string(engine.KindInvalidQuery), err.Error())
			return
		}
		h.logger.Error("search failed",
			zap.String("request_id", requestID),
			zap.String("query", req.Query),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "search_error", "search temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type resolveRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	resolved, err := h.engine.Resolve(req.SessionID, req.Query)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, string(engine.KindOf(err)), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resolved)
}

func (h *Handler) TopicChange(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	result, err := h.engine.DetectTopicChange(req.SessionID, req.Query)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, string(engine.KindOf(err)), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.ContextSummary(sessionID))
}

func (h *Handler) ResetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}
	h.engine.ResetSession(r.Context(), sessionID)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": sessionID})
}

type turnRequest struct {
	SessionID   string             `json:"session_id"`
	UserMessage string             `json:"user_message"`
	BotResponse string             `json:"bot_response"`
	ContextType models.ContextType `json:"context_type,omitempty"`
}

func (h *Handler) RecordTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	turn, err := h.engine.RecordTurn(req.SessionID, req.UserMessage, req.BotResponse, req.ContextType)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, string(engine.KindOf(err)), err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, turn)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) parseSearchRequest(r *http.Request) (engine.SearchRequest, error) {
	if r.Method == http.MethodPost {
		var req engine.SearchRequest
		limited := io.LimitReader(r.Body, maxRequestBodySize)
		if err := json.NewDecoder(limited).Decode(&req); err != nil {
			return engine.SearchRequest{}, err
		}
		return req, nil
	}

	// GET request
	req := engine.SearchRequest{
		Query:     r.URL.Query().Get("q"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err == nil && limit > 0 {
			req.Limit = limit
		}
	}
	return req, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limited := io.LimitReader(r.Body, maxRequestBodySize)
	if err := json.NewDecoder(limited).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
