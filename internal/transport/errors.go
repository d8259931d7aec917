package transport

import (
	"errors"
	"fmt"
	"time"
)

// AuthErrorKind discriminates sign-in failures so the orchestrator can map
// them to user guidance without inspecting error text.
type AuthErrorKind int

const (
	// AuthErrOther is an unexpected platform rejection.
	AuthErrOther AuthErrorKind = iota
	// AuthErrInvalidCode means the submitted verification code was wrong.
	AuthErrInvalidCode
	// AuthErrCodeExpired means the challenge expired platform-side.
	AuthErrCodeExpired
	// AuthErrFloodLimited means the platform is rate-limiting the account.
	AuthErrFloodLimited
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthErrInvalidCode:
		return "invalid_code"
	case AuthErrCodeExpired:
		return "code_expired"
	case AuthErrFloodLimited:
		return "flood_limited"
	default:
		return "other"
	}
}

// AuthError is a typed sign-in failure.
type AuthError struct {
	Kind AuthErrorKind
	// Wait is the platform-requested backoff for flood limits, zero otherwise.
	Wait time.Duration
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AsAuthError unwraps err into an *AuthError if there is one in the chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ConnectionError means the platform transport is unreachable. Retryable by
// re-attempting connect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is a transport reachability failure.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ErrSubscriptionClosed is returned by Subscribe when the connection was
// torn down underneath an active subscription.
var ErrSubscriptionClosed = errors.New("subscription closed: connection ended")
