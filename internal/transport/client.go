// Package transport defines the messaging platform client capability the
// core depends on, plus its typed error taxonomy. The production
// implementation lives in gotd.go; tests use hand-written fakes.
package transport

import "context"

// Message is one inbound event from the monitored source channel.
type Message struct {
	ID int
	// ChannelID and AccessHash identify the channel the message arrived in.
	ChannelID  int64
	AccessHash int64
	// SenderID is the platform identity that sent the message, 0 when the
	// platform did not attach a sender (e.g. anonymous channel posts).
	SenderID int64
}

// Client wraps one connection to the messaging platform for one account.
// It exposes only the lifecycle operations the session state machine needs;
// the wire protocol stays behind this boundary.
type Client interface {
	// Connect establishes the underlying connection. It returns a
	// *ConnectionError when the platform is unreachable.
	Connect(ctx context.Context) error

	// IsConnected reports whether the connection is currently up.
	IsConnected() bool

	// IsAuthorized queries the remote platform for the credential state of
	// this session. It may fail with a *ConnectionError.
	IsAuthorized(ctx context.Context) (bool, error)

	// RequestCode asks the platform to deliver a verification code to the
	// account. At most one outstanding challenge exists per client.
	RequestCode(ctx context.Context, phone string) error

	// SignIn completes an outstanding verification challenge. Failures are
	// reported as *AuthError with a discriminating Kind.
	SignIn(ctx context.Context, phone, code string) error

	// Disconnect tears down the connection. Safe to call more than once.
	Disconnect()

	// SelfID returns the platform identity of the signed-in account, or 0
	// before authorization completes. Used to suppress self-forward loops.
	SelfID() int64

	// Subscribe delivers inbound messages scoped to the source channel to
	// onMessage until the connection ends or ctx is cancelled. It returns
	// only when the subscription is over.
	Subscribe(ctx context.Context, sourceChannel int64, onMessage func(Message)) error

	// Forward relays one message verbatim to the destination.
	Forward(ctx context.Context, destination string, msg Message) error
}

// Factory constructs a fresh client handle for an account identifier. The
// handle is bound to that account's session artifact so that a successful
// sign-in persists the credential.
type Factory func(phone string) Client
