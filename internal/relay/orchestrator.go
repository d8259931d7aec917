// Package relay drives the session lifecycle state machine and the
// subscribe-and-forward pipeline for the managed account.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alamati/tgrelay/internal/domain"
	"github.com/alamati/tgrelay/internal/session"
	"github.com/alamati/tgrelay/internal/store"
	"github.com/alamati/tgrelay/internal/transport"
)

// State is the outcome of one pass through the auth state machine, as
// surfaced to the UI layer.
type State string

const (
	StateAuthorized   State = "authorized"
	StateAwaitingCode State = "awaiting_code"
	StateFailed       State = "failed"
)

// Kind refines a non-authorized result so the UI can pick guidance without
// parsing detail text.
type Kind string

const (
	KindNone        Kind = ""
	KindNoSession   Kind = "no_session"
	KindInvalidCode Kind = "invalid_code"
	KindCodeExpired Kind = "code_expired"
	KindFloodWait   Kind = "flood_wait"
	KindConnection  Kind = "connection"
	KindAuthFailed  Kind = "auth_failed"
)

// Result is what the orchestrator hands to the UI layer: a small state
// enum, a message kind, and human-readable detail. Raw transport errors
// never cross this boundary.
type Result struct {
	State  State  `json:"state"`
	Kind   Kind   `json:"kind,omitempty"`
	Detail string `json:"detail"`
}

// StatusReport describes the registry for the status endpoint.
type StatusReport struct {
	Account        string          `json:"account"`
	Active         bool            `json:"active"`
	ActiveSessions int             `json:"active_sessions"`
	TotalClients   int             `json:"total_clients"`
	Sessions       map[string]bool `json:"sessions"`
}

// Orchestrator reconciles the session registry, the artifact store and the
// transport to keep exactly one authorized, forwarding session for the
// managed account.
type Orchestrator struct {
	phone     string
	artifacts *session.Store
	registry  *session.Registry
	newClient transport.Factory
	forwarder *Forwarder
	audit     store.AuditLog // optional

	// authMu serializes authentication attempts for the account. It is not
	// the registry lock; the registry guards its own map and is never held
	// across network calls.
	authMu sync.Mutex
}

// NewOrchestrator wires the state machine. audit may be nil.
func NewOrchestrator(phone string, artifacts *session.Store, registry *session.Registry, factory transport.Factory, forwarder *Forwarder, audit store.AuditLog) *Orchestrator {
	return &Orchestrator{
		phone:     phone,
		artifacts: artifacts,
		registry:  registry,
		newClient: factory,
		forwarder: forwarder,
		audit:     audit,
	}
}

// Resume attempts to restore an authorized session without human input:
// first from the registry, then from the stored artifact. It never requests
// a verification code.
func (o *Orchestrator) Resume(ctx context.Context) Result {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	if res, ok := o.resumeLive(ctx); ok {
		return res
	}
	if res, ok := o.resumeFromDisk(ctx); ok {
		return res
	}
	return Result{
		State:  StateFailed,
		Kind:   KindNoSession,
		Detail: "no active session; request a verification code to create one",
	}
}

// RequestCode walks the full precedence order: reuse a live authorized
// session, resume from disk, or connect fresh and request a verification
// code. Re-entering with an authorized session never re-sends a code.
func (o *Orchestrator) RequestCode(ctx context.Context) Result {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	if res, ok := o.resumeLive(ctx); ok {
		return res
	}
	if res, ok := o.resumeFromDisk(ctx); ok {
		return res
	}
	return o.requestFreshCode(ctx)
}

// SubmitCode completes an outstanding verification challenge. Invalid,
// expired and flood-limited codes keep the registered handle so the user
// can retry; unexpected rejections tear the attempt down.
func (o *Orchestrator) SubmitCode(ctx context.Context, code string) Result {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	if !domain.ValidCode(code) {
		return Result{
			State:  StateAwaitingCode,
			Kind:   KindInvalidCode,
			Detail: "verification code must be at least four digits",
		}
	}

	entry, ok := o.registry.Get(o.phone)
	if !ok {
		// The handle holding the challenge is gone, e.g. after a restart.
		// Request a fresh code instead of failing the submission.
		slog.Warn("No client handle for code submission, requesting a new code", "phone", o.phone)
		res := o.requestFreshCode(ctx)
		if res.State == StateAwaitingCode {
			res.Detail = "previous challenge was lost; a new verification code was sent"
		}
		return res
	}

	if entry.Authorized {
		o.startForwarding(entry.Client)
		return Result{State: StateAuthorized, Detail: "session already authorized"}
	}

	client := entry.Client
	if !client.IsConnected() {
		slog.Warn("Client disconnected before sign-in, reconnecting", "phone", o.phone)
		if err := client.Connect(ctx); err != nil {
			return Result{
				State:  StateFailed,
				Kind:   KindConnection,
				Detail: "could not reach the messaging platform; try again",
			}
		}
	}

	if err := client.SignIn(ctx, o.phone, code); err != nil {
		return o.classifySignInFailure(ctx, err)
	}

	o.registry.MarkAuthorized(o.phone, true)
	o.recordEvent(ctx, store.EventSignedIn, "verification code accepted")
	o.startForwarding(client)
	slog.Info("Account authorized", "phone", o.phone)
	return Result{State: StateAuthorized, Detail: "signed in; forwarding is active"}
}

// Logout disconnects the account, removes its registry entry and deletes
// the stored artifact. Returns session.ErrNoSession when nothing is
// registered for the account.
func (o *Orchestrator) Logout(ctx context.Context, phone string) error {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	err := o.registry.Remove(phone)
	o.artifacts.Delete(phone)
	if err != nil {
		return fmt.Errorf("logout %s: %w", phone, err)
	}
	o.recordEvent(ctx, store.EventLogout, "")
	return nil
}

// Status reports the registry state for the status endpoint.
func (o *Orchestrator) Status() StatusReport {
	snapshot := o.registry.Snapshot()
	active := 0
	for _, a := range snapshot {
		if a {
			active++
		}
	}
	return StatusReport{
		Account:        o.phone,
		Active:         snapshot[o.phone],
		ActiveSessions: active,
		TotalClients:   o.registry.Len(),
		Sessions:       snapshot,
	}
}

// resumeLive implements precedence step 1: an authorized registry entry
// whose handle still reports connected and authorized wins outright.
func (o *Orchestrator) resumeLive(ctx context.Context) (Result, bool) {
	entry, ok := o.registry.Get(o.phone)
	if !ok || !entry.Authorized {
		return Result{}, false
	}
	if !entry.Client.IsConnected() {
		slog.Warn("Registered client no longer connected", "phone", o.phone)
		return Result{}, false
	}
	authorized, err := entry.Client.IsAuthorized(ctx)
	if err != nil || !authorized {
		slog.Warn("Registered client lost authorization", "phone", o.phone, "error", err)
		return Result{}, false
	}

	o.startForwarding(entry.Client)
	return Result{State: StateAuthorized, Detail: "session already active; forwarding continues"}, true
}

// resumeFromDisk implements precedence step 2: connect through a stored
// artifact. An artifact that cannot produce an authorized session is
// deleted so the flow falls through to a fresh code request.
func (o *Orchestrator) resumeFromDisk(ctx context.Context) (Result, bool) {
	rec, err := o.artifacts.Load(o.phone)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("Failed to load session artifact", "phone", o.phone, "error", err)
		}
		return Result{}, false
	}
	slog.Info("Found session artifact, attempting resume", "phone", o.phone, "size", rec.Size)

	client := o.newClient(o.phone)
	if err := client.Connect(ctx); err != nil {
		slog.Warn("Stored session failed to connect, discarding artifact", "phone", o.phone, "error", err)
		o.artifacts.Delete(o.phone)
		return Result{}, false
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil || !authorized {
		slog.Warn("Stored session is not authorized, discarding artifact", "phone", o.phone, "error", err)
		client.Disconnect()
		o.artifacts.Delete(o.phone)
		return Result{}, false
	}

	o.registry.Put(o.phone, client, true)
	o.recordEvent(ctx, store.EventSessionResumed, fmt.Sprintf("artifact size %d", rec.Size))
	o.startForwarding(client)
	slog.Info("Resumed stored session", "phone", o.phone)
	return Result{State: StateAuthorized, Detail: "resumed stored session; forwarding is active"}, true
}

// requestFreshCode implements precedence step 3: connect a fresh handle and
// ask the platform for a verification code. The not-yet-authorized handle
// is registered so a later submission can reuse it.
func (o *Orchestrator) requestFreshCode(ctx context.Context) Result {
	client := o.newClient(o.phone)
	if err := client.Connect(ctx); err != nil {
		slog.Error("Failed to connect for code request", "phone", o.phone, "error", err)
		return Result{
			State:  StateFailed,
			Kind:   KindConnection,
			Detail: "could not reach the messaging platform; check connectivity and try again",
		}
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		client.Disconnect()
		return Result{
			State:  StateFailed,
			Kind:   KindConnection,
			Detail: "could not verify session state; try again",
		}
	}
	if authorized {
		// The platform still holds a valid session for this account even
		// though no artifact survived locally.
		o.registry.Put(o.phone, client, true)
		o.recordEvent(ctx, store.EventSessionResumed, "platform session still valid")
		o.startForwarding(client)
		return Result{State: StateAuthorized, Detail: "existing platform session restored; forwarding is active"}
	}

	if err := client.RequestCode(ctx, o.phone); err != nil {
		client.Disconnect()
		slog.Error("Failed to request verification code", "phone", o.phone, "error", err)
		if ae, ok := transport.AsAuthError(err); ok && ae.Kind == transport.AuthErrFloodLimited {
			return Result{
				State:  StateFailed,
				Kind:   KindFloodWait,
				Detail: "too many attempts; wait before requesting another code",
			}
		}
		if transport.IsConnectionError(err) {
			return Result{
				State:  StateFailed,
				Kind:   KindConnection,
				Detail: "could not reach the messaging platform; try again",
			}
		}
		return Result{
			State:  StateFailed,
			Kind:   KindAuthFailed,
			Detail: "the platform rejected the code request",
		}
	}

	o.registry.Put(o.phone, client, false)
	o.recordEvent(ctx, store.EventCodeRequested, "")
	slog.Info("Verification code requested", "phone", o.phone)
	return Result{State: StateAwaitingCode, Detail: "verification code sent; check the account's messages"}
}

// classifySignInFailure maps a typed sign-in error to a user-facing result.
// User-correctable failures keep the outstanding handle in the registry.
func (o *Orchestrator) classifySignInFailure(ctx context.Context, err error) Result {
	if ae, ok := transport.AsAuthError(err); ok {
		switch ae.Kind {
		case transport.AuthErrInvalidCode:
			o.recordEvent(ctx, store.EventSignInFailed, "invalid code")
			return Result{
				State:  StateAwaitingCode,
				Kind:   KindInvalidCode,
				Detail: "verification code is incorrect; try again",
			}
		case transport.AuthErrCodeExpired:
			o.recordEvent(ctx, store.EventSignInFailed, "code expired")
			return Result{
				State:  StateAwaitingCode,
				Kind:   KindCodeExpired,
				Detail: "verification code expired; request a new one",
			}
		case transport.AuthErrFloodLimited:
			o.recordEvent(ctx, store.EventSignInFailed, "flood limited")
			detail := "too many attempts; wait before trying again"
			if ae.Wait > 0 {
				detail = fmt.Sprintf("too many attempts; wait %s before trying again", ae.Wait)
			}
			return Result{State: StateAwaitingCode, Kind: KindFloodWait, Detail: detail}
		}
	}

	if transport.IsConnectionError(err) {
		return Result{
			State:  StateFailed,
			Kind:   KindConnection,
			Detail: "could not reach the messaging platform; try again",
		}
	}

	// Unexpected platform rejection: terminal for this attempt. Tear down
	// the handle so the next attempt starts clean.
	slog.Error("Sign-in rejected", "phone", o.phone, "error", err)
	o.recordEvent(ctx, store.EventSignInFailed, "platform rejection")
	if removeErr := o.registry.Remove(o.phone); removeErr != nil && !errors.Is(removeErr, session.ErrNoSession) {
		slog.Error("Failed to remove registry entry", "phone", o.phone, "error", removeErr)
	}
	return Result{
		State:  StateFailed,
		Kind:   KindAuthFailed,
		Detail: "the platform rejected the sign-in; request a new code",
	}
}

// startForwarding launches the pipeline for an authorized handle exactly
// once. The registry's active flag is the start guard.
func (o *Orchestrator) startForwarding(client transport.Client) {
	runCtx, cancel := context.WithCancel(context.Background())
	if !o.registry.BeginForwarding(o.phone, cancel) {
		cancel()
		return
	}
	go o.forwarder.Run(runCtx, o.phone, client)
}

func (o *Orchestrator) recordEvent(ctx context.Context, kind store.EventKind, detail string) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, o.phone, kind, detail); err != nil {
		slog.Error("Failed to record audit event", "kind", kind, "error", err)
	}
}
