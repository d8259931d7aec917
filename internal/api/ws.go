package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// statusInterval is how often the live status stream pushes a snapshot.
const statusInterval = 2 * time.Second

// StatusStreamHandler pushes registry snapshots over a WebSocket so the
// admin page updates without polling.
type StatusStreamHandler struct {
	*Handler
}

// NewStatusStreamHandler creates a new status stream handler.
func NewStatusStreamHandler(base *Handler) *StatusStreamHandler {
	return &StatusStreamHandler{Handler: base}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StatusStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Status stream connection request", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain reads so we notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	// Send one snapshot immediately, then on every tick.
	if err := h.writeStatus(ctx, ws); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Status stream closed", "ip", r.RemoteAddr)
			return
		case <-ticker.C:
			if err := h.writeStatus(ctx, ws); err != nil {
				slog.Debug("Status stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *StatusStreamHandler) writeStatus(ctx context.Context, ws *websocket.Conn) error {
	data, err := json.Marshal(h.relay.Status())
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
