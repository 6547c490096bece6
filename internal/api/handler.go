// Package api provides the HTTP handlers for the support router.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/kv"
	"github.com/ashureev/supportd/internal/orchestrator"
	"github.com/ashureev/supportd/internal/session"
)

// Handler provides common handler utilities and dependencies.
type Handler struct {
	orch        *orchestrator.Orchestrator
	sessions    *session.Store
	kv          kv.Store
	frontendURL string
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(orch *orchestrator.Orchestrator, sessions *session.Store, store kv.Store, frontendURL string) *Handler {
	return &Handler{
		orch:        orch,
		sessions:    sessions,
		kv:          store,
		frontendURL: frontendURL,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// DomainError maps the error taxonomy onto HTTP statuses.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrUpstream):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// isDevelopment returns true if running in development mode.
func (h *Handler) isDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return h.frontendURL == "" ||
		strings.Contains(h.frontendURL, "localhost") ||
		strings.Contains(h.frontendURL, "127.0.0.1")
}
