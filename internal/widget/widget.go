// Package widget binds the embed widget hosted in the browser page to
// the gateway. Volume commands travel over the page's WebSocket
// connection; volume reads are correlated request/reply pairs resolved
// by the page's widget/volume-result command.
package widget

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
)

// pendingTTL bounds how long an unanswered volume read is retained.
// Callers apply their own shorter timeout; this only prevents leaks.
const pendingTTL = 5 * time.Second

// Hub relays widget commands to the most recently bound page. It
// implements the ducker's WidgetControl surface.
type Hub struct {
	mu      sync.Mutex
	send    chan<- any
	pending map[string]func(int)
}

// NewHub creates an unbound widget hub.
func NewHub() *Hub {
	return &Hub{pending: make(map[string]func(int))}
}

// Bind attaches the send channel of a connected page. A newly connected
// page replaces any previous binding.
func (h *Hub) Bind(send chan<- any) {
	h.mu.Lock()
	h.send = send
	h.mu.Unlock()
}

// Unbind detaches a page's send channel. Binding from a newer page is
// left in place.
func (h *Hub) Unbind(send chan<- any) {
	h.mu.Lock()
	if h.send == send {
		h.send = nil
	}
	h.mu.Unlock()
}

// SetVolume asks the page to set the widget volume.
func (h *Hub) SetVolume(percent int) {
	h.trySend(types.WSWidgetCommand{Type: "widget/set-volume", Volume: percent})
}

// GetVolume asks the page for the widget volume and invokes callback
// with the answer. If no page is bound or the page never answers, the
// callback is simply never invoked; callers time out on their side.
func (h *Hub) GetVolume(callback func(int)) {
	id := requestID()

	h.mu.Lock()
	h.pending[id] = callback
	h.mu.Unlock()

	time.AfterFunc(pendingTTL, func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	})

	h.trySend(types.WSWidgetCommand{Type: "widget/get-volume", ID: id})
}

// Resolve completes a pending volume read with the page's answer.
func (h *Hub) Resolve(id string, volume int) {
	h.mu.Lock()
	callback := h.pending[id]
	delete(h.pending, id)
	h.mu.Unlock()

	if callback != nil {
		callback(volume)
	}
}

// trySend delivers a message to the bound page without blocking. The
// lock is held across the send so an Unbind during page teardown can
// never race a write to a closing channel.
func (h *Hub) trySend(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.send == nil {
		slog.Debug("widget command dropped: no page bound")
		return
	}
	select {
	case h.send <- msg:
	default:
		slog.Warn("widget command dropped: send channel full")
	}
}

// requestID returns a short random correlation ID.
func requestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "widget-req"
	}
	return hex.EncodeToString(b)
}
