package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginIssuesToken(t *testing.T) {
	auth := NewAuthenticator("hunter2")

	token, ok := auth.Login("hunter2")
	if !ok {
		t.Fatal("Expected login to succeed with correct password")
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}
	if !auth.Valid(token) {
		t.Error("Expected freshly issued token to be valid")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthenticator("hunter2")

	token, ok := auth.Login("hunter3")
	if ok {
		t.Error("Expected login to fail with wrong password")
	}
	if token != "" {
		t.Errorf("Expected empty token on failed login, got %q", token)
	}
}

func TestValidRejectsUnknownAndEmptyTokens(t *testing.T) {
	auth := NewAuthenticator("hunter2")

	if auth.Valid("") {
		t.Error("Expected empty token to be invalid")
	}
	if auth.Valid("deadbeef") {
		t.Error("Expected unknown token to be invalid")
	}
}

func TestRevoke(t *testing.T) {
	auth := NewAuthenticator("hunter2")

	token, _ := auth.Login("hunter2")
	auth.Revoke(token)
	if auth.Valid(token) {
		t.Error("Expected revoked token to be invalid")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthenticator("hunter2")

	token, _ := auth.Login("hunter2")
	auth.mu.Lock()
	auth.tokens[token] = time.Now().Add(-time.Minute)
	auth.mu.Unlock()

	if auth.Valid(token) {
		t.Error("Expected expired token to be invalid")
	}
}

func TestMiddleware(t *testing.T) {
	auth := NewAuthenticator("hunter2")
	token, _ := auth.Login("hunter2")

	protected := Middleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Without a cookie.
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without cookie, got %d", rec.Code)
	}

	// With a valid cookie.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: token})
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid cookie, got %d", rec.Code)
	}
}

func TestSetAuthCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAuthCookie(rec, "abc123", true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != AuthCookieName {
		t.Errorf("Expected cookie name %q, got %q", AuthCookieName, c.Name)
	}
	if !c.HttpOnly {
		t.Error("Expected HttpOnly cookie")
	}
	if c.Secure {
		t.Error("Expected Secure=false in dev mode")
	}
}
