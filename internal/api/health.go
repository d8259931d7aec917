package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alamati/tgrelay/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	audit store.AuditLog
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(audit store.AuditLog) *HealthHandler {
	return &HealthHandler{audit: audit}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.audit.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
