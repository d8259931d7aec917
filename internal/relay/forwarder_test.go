package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alamati/tgrelay/internal/session"
	"github.com/alamati/tgrelay/internal/transport"
)

func runForwarder(t *testing.T, client *fakeClient) (*session.Registry, chan struct{}, context.CancelFunc) {
	t.Helper()
	registry := session.NewRegistry()
	registry.Put(testPhone, client, true)

	ctx, cancel := context.WithCancel(context.Background())
	if !registry.BeginForwarding(testPhone, cancel) {
		t.Fatal("BeginForwarding failed")
	}

	f := NewForwarder(registry, nil, testSource, testDest)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx, testPhone, client)
	}()
	return registry, done, cancel
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forwarder did not stop in time")
	}
}

// Scenario D: events from the account's own identity are never forwarded.
func TestForwarderSkipsOwnMessages(t *testing.T) {
	client := newFakeClient()
	client.selfID = 42
	_, done, _ := runForwarder(t, client)

	client.events <- transport.Message{ID: 1, ChannelID: testSource, SenderID: 42}
	client.events <- transport.Message{ID: 2, ChannelID: testSource, SenderID: 7}
	close(client.events)
	waitDone(t, done)

	if got := client.forwardedCount(); got != 1 {
		t.Fatalf("Expected 1 forwarded message, got %d", got)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.forwarded[0].ID != 2 {
		t.Errorf("Expected message 2 forwarded, got %d", client.forwarded[0].ID)
	}
}

// Scenario E: a single forward failure does not kill the subscription; the
// next event is still forwarded.
func TestForwarderSurvivesForwardFailure(t *testing.T) {
	client := newFakeClient()
	client.forwardErrs = []error{&transport.ConnectionError{Err: context.DeadlineExceeded}}
	_, done, _ := runForwarder(t, client)

	client.events <- transport.Message{ID: 1, ChannelID: testSource, SenderID: 7}
	client.events <- transport.Message{ID: 2, ChannelID: testSource, SenderID: 7}
	close(client.events)
	waitDone(t, done)

	if got := client.forwardedCount(); got != 1 {
		t.Fatalf("Expected the second message forwarded despite the failure, got %d", got)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.forwarded[0].ID != 2 {
		t.Errorf("Expected message 2 forwarded, got %d", client.forwarded[0].ID)
	}
}

// A terminated subscription clears the active flag so a health check can
// detect the account needs re-authentication.
func TestForwarderClearsActiveOnTermination(t *testing.T) {
	client := newFakeClient()
	registry, done, _ := runForwarder(t, client)

	if !registry.Snapshot()[testPhone] {
		t.Fatal("Expected account active while subscription runs")
	}

	close(client.events)
	waitDone(t, done)

	if registry.Snapshot()[testPhone] {
		t.Error("Expected active flag cleared after subscription ended")
	}
	if _, ok := registry.Get(testPhone); !ok {
		t.Error("Expected registry entry retained for re-authentication")
	}
}

// Cancellation is cooperative: cancelling the pipeline context stops the
// run without waiting for the connection to drop.
func TestForwarderStopsOnCancel(t *testing.T) {
	client := newFakeClient()
	registry, done, cancel := runForwarder(t, client)

	cancel()
	waitDone(t, done)

	if registry.Snapshot()[testPhone] {
		t.Error("Expected active flag cleared after cancellation")
	}
}

// Messages with no sender attached (anonymous channel posts) must still be
// forwarded; only a confirmed self-match is skipped.
func TestForwarderForwardsAnonymousPosts(t *testing.T) {
	client := newFakeClient()
	client.selfID = 42
	_, done, _ := runForwarder(t, client)

	client.events <- transport.Message{ID: 1, ChannelID: testSource, SenderID: 0}
	close(client.events)
	waitDone(t, done)

	if got := client.forwardedCount(); got != 1 {
		t.Errorf("Expected anonymous post forwarded, got %d", got)
	}
}
