// Package store provides persistence for the authentication audit trail.
package store

import (
	"context"
	"time"
)

// EventKind labels one auth/lifecycle event.
type EventKind string

const (
	EventCodeRequested     EventKind = "code_requested"
	EventSignedIn          EventKind = "signed_in"
	EventSignInFailed      EventKind = "sign_in_failed"
	EventSessionResumed    EventKind = "session_resumed"
	EventLogout            EventKind = "logout"
	EventForwardingStopped EventKind = "forwarding_stopped"
)

// AuthEvent is one recorded lifecycle event for an account. Message content
// is never stored here; the log covers authentication and session
// transitions only.
type AuthEvent struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLog defines the interface for persisting auth lifecycle events.
type AuditLog interface {
	// Record appends one event.
	Record(ctx context.Context, phone string, kind EventKind, detail string) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]AuthEvent, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
