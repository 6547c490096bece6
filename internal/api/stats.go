package api

import (
	"net/http"

	"github.com/ashureev/supportd/internal/cache"
)

// SystemStats reports key counts per namespace plus backend health.
type SystemStats struct {
	TotalKeys      int64 `json:"total_keys"`
	Sessions       int64 `json:"sessions"`
	Conversations  int64 `json:"conversations"`
	OrderCache     int64 `json:"order_cache"`
	FAQCache       int64 `json:"faq_cache"`
	AgentStates    int64 `json:"agent_states"`
	BackendHealthy bool  `json:"backend_healthy"`
}

func (h *Handler) systemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := SystemStats{
		BackendHealthy: h.kv.Ping(ctx) == nil,
	}

	counts := []struct {
		prefix string
		dest   *int64
	}{
		{"", &stats.TotalKeys},
		{"session:", &stats.Sessions},
		{"conversation:", &stats.Conversations},
		{cache.OrderKeyPrefix, &stats.OrderCache},
		{cache.FAQSearchKeyPrefix, &stats.FAQCache},
		{cache.AgentStateKeyPrefix, &stats.AgentStates},
	}
	for _, c := range counts {
		n, err := h.kv.CountKeys(ctx, c.prefix)
		if err != nil {
			DomainError(w, err)
			return
		}
		*c.dest = n
	}

	// Order summaries and email searches count toward the order cache.
	for _, prefix := range []string{cache.OrderSummaryKeyPrefix, cache.EmailSearchKeyPrefix} {
		n, err := h.kv.CountKeys(ctx, prefix)
		if err != nil {
			DomainError(w, err)
			return
		}
		stats.OrderCache += n
	}

	JSON(w, http.StatusOK, stats)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.kv.Ping(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
