package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the session API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.startSession)
		r.Get("/sessions", h.listSessions)
		r.Delete("/sessions/{sessionID}", h.endSession)
		r.Post("/sessions/{sessionID}/messages", h.postMessage)
		r.Get("/sessions/{sessionID}/history", h.getHistory)
		r.Get("/sessions/{sessionID}/stats", h.getStats)
		r.Post("/sessions/{sessionID}/reset", h.resetConversation)
		r.Get("/stats", h.systemStats)
		r.Get("/health", h.health)
	})
}

type startSessionRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	UserData  map[string]string `json:"user_data,omitempty"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	result, err := h.orch.StartSession(r.Context(), req.SessionID, req.UserData)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, result)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := h.orch.ActiveSessions(r.Context())
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
	})
}

type postMessageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.orch.ProcessMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// The session must exist even if the conversation is empty.
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		DomainError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	history, err := h.sessions.History(r.Context(), sessionID, limit)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   history,
		"count":      len(history),
	})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.Stats(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

func (h *Handler) resetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.orch.ResetConversation(r.Context(), sessionID); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cleared":    true,
	})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.EndSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}
