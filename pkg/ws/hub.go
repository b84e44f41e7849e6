package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// sendBuffer bounds each client's outbound queue. A driver app that stops
// reading loses frames rather than stalling the hub.
const sendBuffer = 256

// Hub tracks connected clients by id and routes frames to them. One client
// per id; a new registration for an existing id closes the old channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]chan []byte)}
}

// Register adds a client and returns its outbound channel. An existing
// registration for the same id is evicted and its channel closed.
func (h *Hub) Register(clientID uuid.UUID) chan []byte {
	ch := make(chan []byte, sendBuffer)

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		close(old)
		logger.Warn("evicting duplicate client connection", zap.String("client_id", clientID.String()))
	}
	h.clients[clientID] = ch
	h.mu.Unlock()

	return ch
}

// Unregister removes a client and closes its channel, if it is still the
// registered one for the id.
func (h *Hub) Unregister(clientID uuid.UUID, ch chan []byte) {
	h.mu.Lock()
	if current, ok := h.clients[clientID]; ok && current == ch {
		delete(h.clients, clientID)
		close(current)
	}
	h.mu.Unlock()
}

// SendTo queues a frame for a client. Returns false when the client is not
// connected or its queue is full; the frame is dropped either way.
func (h *Hub) SendTo(clientID uuid.UUID, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.clients[clientID]
	if !ok {
		return false
	}

	select {
	case ch <- frame:
		return true
	default:
		logger.Warn("dropping frame for slow client", zap.String("client_id", clientID.String()))
		return false
	}
}

// Broadcast queues a frame for every connected client.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.clients {
		select {
		case ch <- frame:
		default:
			logger.Warn("dropping broadcast for slow client", zap.String("client_id", id.String()))
		}
	}
}

// Connected reports whether a client is currently registered.
func (h *Hub) Connected(clientID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
