// Package identity provides admin authentication for the relay's control
// surface: a password gate that issues an opaque cookie token.
package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// AuthCookieName carries the admin session token.
	AuthCookieName = "tgrelay_auth"
	tokenTTL       = 12 * time.Hour
)

// Authenticator verifies the admin credential and tracks issued tokens in
// memory. Tokens do not survive a restart; the admin just logs in again.
type Authenticator struct {
	password string

	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

// NewAuthenticator creates an authenticator for the configured password.
func NewAuthenticator(password string) *Authenticator {
	return &Authenticator{
		password: password,
		tokens:   make(map[string]time.Time),
	}
}

// Login checks the submitted password in constant time and issues a token
// when it matches.
func (a *Authenticator) Login(password string) (string, bool) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", false
	}

	token, err := generateToken()
	if err != nil {
		return "", false
	}

	a.mu.Lock()
	a.tokens[token] = time.Now().Add(tokenTTL)
	a.pruneLocked()
	a.mu.Unlock()
	return token, true
}

// Valid reports whether a token was issued by Login and has not expired.
func (a *Authenticator) Valid(token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	expiry, ok := a.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(a.tokens, token)
		return false
	}
	return true
}

// Revoke drops a token.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

func (a *Authenticator) pruneLocked() {
	now := time.Now()
	for token, expiry := range a.tokens {
		if now.After(expiry) {
			delete(a.tokens, token)
		}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SetAuthCookie writes the admin token cookie.
func SetAuthCookie(w http.ResponseWriter, token string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenTTL.Seconds()),
		Expires:  time.Now().Add(tokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// TokenFromRequest extracts the admin token from the request cookie.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(AuthCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Middleware rejects requests that do not carry a valid admin token.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Valid(TokenFromRequest(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"admin authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
