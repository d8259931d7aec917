package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alamati/tgrelay/internal/domain"
	"github.com/alamati/tgrelay/internal/identity"
	"github.com/alamati/tgrelay/internal/relay"
	"github.com/alamati/tgrelay/internal/session"
	"github.com/go-chi/chi/v5"
)

// verifyLock prevents concurrent code submissions from racing each other at
// the HTTP layer; the orchestrator serializes too, but rejecting early gives
// the admin an immediate answer instead of a queued one.
var verifyLock sync.Mutex

// RelayHandler handles session lifecycle endpoints.
type RelayHandler struct {
	*Handler
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(base *Handler) *RelayHandler {
	return &RelayHandler{Handler: base}
}

// RegisterRoutes registers relay routes. Everything except login sits behind
// the admin auth middleware.
func (h *RelayHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(h.auth))
			r.Post("/logout", h.AdminLogout)
			r.Post("/code", h.RequestCode)
			r.Post("/verify", h.Verify)
			r.Get("/status", h.Status)
			r.Get("/events", h.Events)
			r.Delete("/sessions/{phone}", h.EndSession)
		})
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Login checks the admin password, issues the auth cookie and tries to
// resume the account session so an already-stored artifact comes back
// online without further clicks.
func (h *RelayHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ok := h.auth.Login(req.Password)
	if !ok {
		slog.Warn("Admin login rejected", "ip", identity.IPFromRequest(r))
		Error(w, http.StatusUnauthorized, "invalid password")
		return
	}
	identity.SetAuthCookie(w, token, h.isDev)

	slog.Info("Admin logged in", "ip", identity.IPFromRequest(r))
	res := h.relay.Resume(r.Context())
	JSON(w, http.StatusOK, res)
}

// AdminLogout revokes the admin token.
func (h *RelayHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Revoke(identity.TokenFromRequest(r))
	JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// RequestCode asks the platform to send a verification code to the account,
// unless a live or stored session already covers it.
func (h *RelayHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	res := h.relay.RequestCode(r.Context())
	JSON(w, statusFor(res), res)
}

// Verify submits the verification code the admin received.
func (h *RelayHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidCode(req.Code) {
		Error(w, http.StatusBadRequest, "verification code must be at least 4 digits")
		return
	}

	if !verifyLock.TryLock() {
		slog.Warn("Verification already in progress")
		Error(w, http.StatusConflict, "verification_in_progress")
		return
	}
	defer verifyLock.Unlock()

	res := h.relay.SubmitCode(r.Context(), req.Code)
	JSON(w, statusFor(res), res)
}

// Status reports the registry snapshot.
func (h *RelayHandler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.relay.Status())
}

// Events returns recent audit log entries, newest first.
func (h *RelayHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	events, err := h.audit.Recent(ctx, 0)
	if err != nil {
		slog.Error("Failed to read audit events", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// EndSession signs the account out and removes its stored artifact.
func (h *RelayHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	phone, err := domain.NormalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.relay.Logout(r.Context(), phone); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			Error(w, http.StatusNotFound, "no session for this account")
			return
		}
		slog.Error("Logout failed", "phone", phone, "error", err)
		Error(w, http.StatusInternalServerError, "logout failed")
		return
	}

	slog.Info("Session ended", "phone", phone)
	JSON(w, http.StatusOK, map[string]string{"status": "logged_out", "phone": phone})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps an orchestrator result to an HTTP status. Recoverable
// challenge outcomes stay 200 so the UI reads the body instead of the code.
func statusFor(res relay.Result) int {
	if res.State != relay.StateFailed {
		return http.StatusOK
	}
	switch res.Kind {
	case relay.KindConnection:
		return http.StatusBadGateway
	case relay.KindAuthFailed:
		return http.StatusUnauthorized
	case relay.KindFloodWait:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
