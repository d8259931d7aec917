package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alamati/tgrelay/internal/transport"
)

// ErrNoSession is returned when an operation targets an account with no
// registry entry.
var ErrNoSession = errors.New("no session registered for account")

// Account is one registry entry: a live client handle plus its lifecycle
// flags. The registry exclusively owns the handle while the entry exists.
type Account struct {
	Phone      string
	Client     transport.Client
	Authorized bool
	Active     bool

	cancel context.CancelFunc
}

// Registry is the process-wide map from account identifier to live client
// handle. All mutations happen under its lock; the lock is never held
// across network calls — disconnects of displaced handles occur after the
// map is released.
type Registry struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{accounts: make(map[string]*Account)}
}

// Get returns a copy of the entry for an account. The copy shares the
// client handle but flag mutations must go through registry methods.
func (r *Registry) Get(phone string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.accounts[phone]
	if !ok {
		return Account{}, false
	}
	return Account{Phone: entry.Phone, Client: entry.Client, Authorized: entry.Authorized, Active: entry.Active}, true
}

// Put installs a client handle for an account, replacing any prior entry.
// The displaced handle, if any, is cancelled and disconnected after the
// lock is released, so at most one live handle exists per identifier.
func (r *Registry) Put(phone string, client transport.Client, authorized bool) {
	r.mu.Lock()
	prior := r.accounts[phone]
	r.accounts[phone] = &Account{Phone: phone, Client: client, Authorized: authorized}
	r.mu.Unlock()

	if prior != nil {
		if prior.cancel != nil {
			prior.cancel()
		}
		prior.Client.Disconnect()
		slog.Info("Replaced prior client handle", "phone", phone)
	}
}

// MarkAuthorized flips the authorized flag for an account. Returns false if
// no entry exists.
func (r *Registry) MarkAuthorized(phone string, authorized bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.accounts[phone]
	if !ok {
		return false
	}
	entry.Authorized = authorized
	return true
}

// BeginForwarding marks an account active and records the cancellation
// hook for its pipeline. Returns false when the entry is absent or already
// active, so a pipeline is started at most once per authorization.
func (r *Registry) BeginForwarding(phone string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.accounts[phone]
	if !ok || entry.Active {
		return false
	}
	entry.Active = true
	entry.cancel = cancel
	return true
}

// MarkActive sets the active flag. Clearing it also drops the pipeline
// cancellation hook; the pipeline itself calls this on termination.
func (r *Registry) MarkActive(phone string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.accounts[phone]
	if !ok {
		return
	}
	entry.Active = active
	if !active {
		entry.cancel = nil
	}
}

// Remove cancels the account's pipeline, disconnects its handle and drops
// the entry. Returns ErrNoSession when the account is not registered.
func (r *Registry) Remove(phone string) error {
	r.mu.Lock()
	entry, ok := r.accounts[phone]
	if ok {
		delete(r.accounts, phone)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.Client.Disconnect()
	slog.Info("Removed account session", "phone", phone)
	return nil
}

// Snapshot returns identifier → active flag for status reporting.
func (r *Registry) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.accounts))
	for phone, entry := range r.accounts {
		out[phone] = entry.Active
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// DisconnectAll tears down every live handle, for process shutdown. Each
// handle is disconnected individually; a failure never aborts the rest.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	entries := make([]*Account, 0, len(r.accounts))
	for _, entry := range r.accounts {
		entries = append(entries, entry)
	}
	r.accounts = make(map[string]*Account)
	r.mu.Unlock()

	for _, entry := range entries {
		if entry.cancel != nil {
			entry.cancel()
		}
		entry.Client.Disconnect()
		slog.Info("Disconnected account session on shutdown", "phone", entry.Phone)
	}
}
