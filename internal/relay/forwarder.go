package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alamati/tgrelay/internal/session"
	"github.com/alamati/tgrelay/internal/store"
	"github.com/alamati/tgrelay/internal/transport"
)

// Forwarder relays every inbound message from the source channel to the
// destination. One Run per authorized account, as a background task.
type Forwarder struct {
	registry      *session.Registry
	audit         store.AuditLog // optional
	sourceChannel int64
	destination   string
}

// NewForwarder creates a pipeline bound to a source channel and a fixed
// destination. audit may be nil.
func NewForwarder(registry *session.Registry, audit store.AuditLog, sourceChannel int64, destination string) *Forwarder {
	return &Forwarder{
		registry:      registry,
		audit:         audit,
		sourceChannel: sourceChannel,
		destination:   destination,
	}
}

// Run subscribes to the source channel and forwards each inbound message
// until the connection drops or ctx is cancelled. A single forward failure
// is logged and never terminates the subscription. On exit the account's
// active flag is cleared so a later status check can re-authenticate.
func (f *Forwarder) Run(ctx context.Context, phone string, client transport.Client) {
	slog.Info("Forwarding started", "phone", phone, "source_channel", f.sourceChannel, "destination", f.destination)

	err := client.Subscribe(ctx, f.sourceChannel, func(msg transport.Message) {
		if self := client.SelfID(); self != 0 && msg.SenderID == self {
			slog.Debug("Skipping own message", "phone", phone, "message_id", msg.ID)
			return
		}

		if err := client.Forward(ctx, f.destination, msg); err != nil {
			slog.Error("Failed to forward message", "phone", phone, "message_id", msg.ID, "error", err)
			return
		}
		slog.Info("Forwarded message", "phone", phone, "message_id", msg.ID, "source_channel", msg.ChannelID)
	})

	f.registry.MarkActive(phone, false)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		slog.Info("Forwarding stopped", "phone", phone)
	default:
		slog.Warn("Forwarding subscription terminated", "phone", phone, "error", err)
	}

	if f.audit != nil {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		if recordErr := f.audit.Record(context.Background(), phone, store.EventForwardingStopped, detail); recordErr != nil {
			slog.Error("Failed to record audit event", "kind", store.EventForwardingStopped, "error", recordErr)
		}
	}
}
