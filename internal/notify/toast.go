// Package notify provides the gateway's single ephemeral notification
// channel: auto-dismissing toasts fanned out to connected pages and
// mirrored to the log. The device-warning banner is deliberately not a
// toast; it is separate session state with its own lifecycle.
package notify

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/samlabs/sam-gateway/internal/types"
)

// Level is the toast severity.
type Level string

// Toast severities.
const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Hub fans toasts out to subscribed pages. It is safe for concurrent
// use.
type Hub struct {
	mu   sync.Mutex
	subs map[chan<- any]struct{}
}

// NewHub creates an empty toast hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan<- any]struct{})}
}

// Subscribe registers a page's send channel for toast delivery.
func (h *Hub) Subscribe(send chan<- any) {
	h.mu.Lock()
	h.subs[send] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes a page's send channel.
func (h *Hub) Unsubscribe(send chan<- any) {
	h.mu.Lock()
	delete(h.subs, send)
	h.mu.Unlock()
}

// Toast publishes an ephemeral notification to every connected page.
// Pages dismiss toasts on their own; the hub retains nothing.
func (h *Hub) Toast(message string, level Level) {
	if level == LevelError {
		slog.Warn("toast", "message", message)
	} else {
		slog.Info("toast", "message", message)
	}

	msg := types.WSToastResponse{
		Type:    "toast",
		ID:      toastID(),
		Message: message,
		Level:   string(level),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for send := range h.subs {
		select {
		case send <- msg:
		default:
			slog.Debug("toast dropped: send channel full")
		}
	}
}

// toastID returns a short random toast identifier.
func toastID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "toast"
	}
	return hex.EncodeToString(b)
}
