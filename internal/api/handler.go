// Package api provides HTTP handlers for the relay admin API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/alamati/tgrelay/internal/identity"
	"github.com/alamati/tgrelay/internal/relay"
	"github.com/alamati/tgrelay/internal/store"
)

// Relay is the slice of the orchestrator the HTTP layer needs.
type Relay interface {
	Resume(ctx context.Context) relay.Result
	RequestCode(ctx context.Context) relay.Result
	SubmitCode(ctx context.Context, code string) relay.Result
	Logout(ctx context.Context, phone string) error
	Status() relay.StatusReport
}

// Handler provides common handler utilities.
type Handler struct {
	relay Relay
	audit store.AuditLog
	auth  *identity.Authenticator
	isDev bool
}

// NewHandler creates a new Handler with common dependencies. isDev comes
// from config.IsDevelopment and controls cookie security attributes.
func NewHandler(r Relay, audit store.AuditLog, auth *identity.Authenticator, isDev bool) *Handler {
	return &Handler{
		relay: r,
		audit: audit,
		auth:  auth,
		isDev: isDev,
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
