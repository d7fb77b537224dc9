package websocket

import (
	"sync"

	"github.com/aescanero/patchwork/pkg/module"
	"go.uber.org/zap"
)

const clientBuffer = 8

// Hub fans snapshots out to connected clients
type Hub struct {
	mu      sync.Mutex
	clients map[chan module.Snapshot]struct{}
	last    *module.Snapshot
	closed  bool
	logger  *zap.Logger
}

// NewHub creates a new hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[chan module.Snapshot]struct{}),
		logger:  logger,
	}
}

// Broadcast sends a snapshot to every client, skipping clients that lag
func (h *Hub) Broadcast(snap module.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.last = &snap
	for ch := range h.clients {
		select {
		case ch <- snap:
		default:
			h.logger.Warn("client channel full, dropping snapshot")
		}
	}
}

// Subscribe registers a client. The channel is primed with the latest
// snapshot and closed when the hub closes.
func (h *Hub) Subscribe() (<-chan module.Snapshot, func()) {
	ch := make(chan module.Snapshot, clientBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	if h.last != nil {
		ch <- *h.last
	}
	h.clients[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}
