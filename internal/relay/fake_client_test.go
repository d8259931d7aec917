package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alamati/tgrelay/internal/transport"
)

// fakeClient is a scripted transport.Client for state machine tests.
type fakeClient struct {
	mu             sync.Mutex
	connected      bool
	authorized     bool
	connectErr     error
	authQueryErr   error
	requestCodeErr error
	signInErrs     []error
	codeRequests   int
	signIns        []string
	disconnects    int
	selfID         int64
	forwardErrs    []error
	forwarded      []transport.Message

	subscribes atomic.Int32
	events     chan transport.Message
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan transport.Message, 16)}
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsAuthorized(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authQueryErr != nil {
		return false, c.authQueryErr
	}
	return c.authorized, nil
}

func (c *fakeClient) RequestCode(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeRequests++
	return c.requestCodeErr
}

func (c *fakeClient) SignIn(_ context.Context, _ string, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signIns = append(c.signIns, code)
	if len(c.signInErrs) > 0 {
		err := c.signInErrs[0]
		c.signInErrs = c.signInErrs[1:]
		if err != nil {
			return err
		}
	}
	c.authorized = true
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeClient) SelfID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

func (c *fakeClient) Subscribe(ctx context.Context, _ int64, onMessage func(transport.Message)) error {
	c.subscribes.Add(1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-c.events:
			if !ok {
				return transport.ErrSubscriptionClosed
			}
			onMessage(m)
		}
	}
}

func (c *fakeClient) Forward(_ context.Context, _ string, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.forwardErrs) > 0 {
		err := c.forwardErrs[0]
		c.forwardErrs = c.forwardErrs[1:]
		if err != nil {
			return err
		}
	}
	c.forwarded = append(c.forwarded, msg)
	return nil
}

func (c *fakeClient) forwardedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forwarded)
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) codeRequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeRequests
}
