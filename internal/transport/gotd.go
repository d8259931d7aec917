package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// GotdClient implements Client over the gotd MTProto library. One instance
// wraps one connection for one account; the session credential is persisted
// through gotd's file storage at sessionPath.
type GotdClient struct {
	appID       int
	appHash     string
	phone       string
	sessionPath string

	mu         sync.Mutex
	client     *telegram.Client
	dispatcher tg.UpdateDispatcher
	stop       bg.StopFunc
	runDone    <-chan struct{}
	connected  bool
	codeHash   string
	selfID     int64
}

var _ Client = (*GotdClient)(nil)

// NewGotdClient creates a disconnected handle for the given account. The
// session artifact at sessionPath is created or reused by the library on
// connect.
func NewGotdClient(appID int, appHash, phone, sessionPath string) *GotdClient {
	return &GotdClient{
		appID:       appID,
		appHash:     appHash,
		phone:       phone,
		sessionPath: sessionPath,
	}
}

// GotdFactory returns a Factory producing GotdClient handles whose session
// artifacts live under the store's per-account paths.
func GotdFactory(appID int, appHash string, sessionPathFor func(phone string) string) Factory {
	return func(phone string) Client {
		return NewGotdClient(appID, appHash, phone, sessionPathFor(phone))
	}
}

// runWatcher wraps a background run loop so its termination is observable:
// done closes when Run returns, whether stopped or failed.
type runWatcher struct {
	inner bg.Client
	done  chan struct{}
}

func (w *runWatcher) Run(ctx context.Context, f func(context.Context) error) error {
	defer close(w.done)
	return w.inner.Run(ctx, f)
}

// connectBackground starts the client's connection loop detached from the
// caller's context. The caller's ctx covers only this call; the connection
// itself lives until the returned stop is invoked or the run loop fails,
// and the returned channel closes on either.
func connectBackground(ctx context.Context, runner bg.Client) (bg.StopFunc, <-chan struct{}, error) {
	w := &runWatcher{inner: runner, done: make(chan struct{})}
	stop, err := bg.Connect(w, bg.WithContext(context.WithoutCancel(ctx)))
	if err != nil {
		return nil, nil, err
	}
	return stop, w.done, nil
}

func (c *GotdClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	c.dispatcher = tg.NewUpdateDispatcher()
	c.client = telegram.NewClient(c.appID, c.appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.sessionPath},
		UpdateHandler:  c.dispatcher,
	})

	stop, done, err := connectBackground(ctx, c.client)
	if err != nil {
		c.client = nil
		return &ConnectionError{Err: err}
	}
	c.stop = stop
	c.runDone = done
	c.connected = true
	return nil
}

func (c *GotdClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	select {
	case <-c.runDone:
		// The run loop exited underneath us.
		c.connected = false
		return false
	default:
		return true
	}
}

func (c *GotdClient) IsAuthorized(ctx context.Context) (bool, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return false, nil
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		return false, &ConnectionError{Err: err}
	}
	if !status.Authorized {
		return false, nil
	}

	self, err := client.Self(ctx)
	if err == nil {
		c.mu.Lock()
		c.selfID = self.ID
		c.mu.Unlock()
	}
	return true, nil
}

func (c *GotdClient) RequestCode(ctx context.Context, phone string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return &ConnectionError{Err: fmt.Errorf("not connected")}
	}

	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return classifyAuthErr(err)
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return &AuthError{Kind: AuthErrOther, Err: fmt.Errorf("unexpected sent code type %T", sent)}
	}

	c.mu.Lock()
	c.codeHash = code.PhoneCodeHash
	c.mu.Unlock()
	return nil
}

func (c *GotdClient) SignIn(ctx context.Context, phone, code string) error {
	c.mu.Lock()
	client := c.client
	codeHash := c.codeHash
	c.mu.Unlock()
	if client == nil {
		return &ConnectionError{Err: fmt.Errorf("not connected")}
	}
	if codeHash == "" {
		return &AuthError{Kind: AuthErrCodeExpired, Err: fmt.Errorf("no outstanding code challenge")}
	}

	if _, err := client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return classifyAuthErr(err)
	}

	if self, err := client.Self(ctx); err == nil {
		c.mu.Lock()
		c.selfID = self.ID
		c.codeHash = ""
		c.mu.Unlock()
	}
	return nil
}

func (c *GotdClient) Disconnect() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			slog.Warn("Transport disconnect reported error", "phone", c.phone, "error", err)
		}
	}
}

func (c *GotdClient) SelfID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// Subscribe registers an update handler scoped to sourceChannel and blocks
// delivering messages to onMessage until ctx is cancelled or the connection
// is torn down. Events arriving faster than onMessage drains them are
// dropped with a warning rather than blocking the update loop.
func (c *GotdClient) Subscribe(ctx context.Context, sourceChannel int64, onMessage func(Message)) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrSubscriptionClosed
	}
	dispatcher := c.dispatcher
	runDone := c.runDone
	c.mu.Unlock()

	events := make(chan Message, 128)
	dispatcher.OnNewChannelMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok {
			return nil
		}
		peer, ok := msg.PeerID.(*tg.PeerChannel)
		if !ok || peer.ChannelID != sourceChannel {
			return nil
		}

		var accessHash int64
		if ch, ok := e.Channels[peer.ChannelID]; ok {
			accessHash = ch.AccessHash
		}
		var senderID int64
		if from, ok := msg.FromID.(*tg.PeerUser); ok {
			senderID = from.UserID
		}

		select {
		case events <- Message{ID: msg.ID, ChannelID: peer.ChannelID, AccessHash: accessHash, SenderID: senderID}:
		default:
			slog.Warn("Dropping inbound message, subscriber is behind", "channel_id", peer.ChannelID, "message_id", msg.ID)
		}
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runDone:
			return ErrSubscriptionClosed
		case m := <-events:
			onMessage(m)
		}
	}
}

func (c *GotdClient) Forward(ctx context.Context, destination string, msg Message) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return &ConnectionError{Err: fmt.Errorf("not connected")}
	}

	from := &tg.InputPeerChannel{ChannelID: msg.ChannelID, AccessHash: msg.AccessHash}
	sender := message.NewSender(client.API())
	_, err := sender.Resolve(strings.TrimPrefix(destination, "@")).ForwardIDs(from, msg.ID).Send(ctx)
	if err != nil {
		return fmt.Errorf("forward message %d to %s: %w", msg.ID, destination, err)
	}
	return nil
}

// classifyAuthErr translates gotd's string-coded RPC errors into the typed
// taxonomy at the adapter boundary, so nothing above this package ever
// inspects error text.
func classifyAuthErr(err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &AuthError{Kind: AuthErrFloodLimited, Wait: wait, Err: err}
	}
	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID"):
		return &AuthError{Kind: AuthErrInvalidCode, Err: err}
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return &AuthError{Kind: AuthErrCodeExpired, Err: err}
	default:
		return &AuthError{Kind: AuthErrOther, Err: err}
	}
}
