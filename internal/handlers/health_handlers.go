package handlers

import (
	"context"
	"net/http"
	"time"

	"meetup-app/internal/cache"
	"meetup-app/pkg/logger"
)

type HealthHandlers struct {
	store cache.Store
}

func NewHealthHandlers(store cache.Store) *HealthHandlers {
	return &HealthHandlers{store: store}
}

// Health reports whether the ephemeral store is reachable.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.Warn("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
