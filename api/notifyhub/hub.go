// Package notifyhub pushes batch progress frames to the console UI over
// WebSocket so per-file progress bars render live without polling.
package notifyhub

import (
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chemora/batchup/types"
)

// progressRatePerSecond bounds how many progress frames per second reach the
// UI. Byte-level progress can tick on every read; the console only needs a
// handful of repaints. Settle frames always go through.
const progressRatePerSecond = 20

// Hub holds WebSocket connections and broadcasts notifications to all clients.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*websocket.Conn]struct{}
	limiter *rate.Limiter
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns:   make(map[*websocket.Conn]struct{}),
		limiter: rate.NewLimiter(rate.Limit(progressRatePerSecond), progressRatePerSecond),
	}
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Broadcast sends the notification as JSON to all registered connections.
// Progress frames are rate-limited; settle frames are never dropped.
func (h *Hub) Broadcast(notification *types.Notification) {
	if notification == nil {
		return
	}
	if notification.Event == types.EventBatchProgress && !h.limiter.Allow() {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}
}
