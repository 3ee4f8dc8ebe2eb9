package handlers

import (
	"log"
	"net/http"

	"github.com/liamwears/reeldeck/internal/database"
)

// HealthHandler reports whether the user state backend is reachable
type HealthHandler struct {
	kv      database.KVStore
	backend string
	logger  *log.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(kv database.KVStore, backend string, logger *log.Logger) *HealthHandler {
	return &HealthHandler{kv: kv, backend: backend, logger: logger}
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.kv.Health(r.Context()); err != nil {
		h.logger.Printf("Health check failed: %v", err)
		writeJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"storage": "down",
			"backend": h.backend,
		})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": "up",
		"backend": h.backend,
	})
}
