package sse

import (
	"sync"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
)

// Hub fans alert messages out to connected operators. A client whose buffer
// is full misses the message; the alert itself stays listed in storage.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*alert.SSEClient
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*alert.SSEClient),
		metrics: m,
	}
}

func (h *Hub) Register(client *alert.SSEClient) {
	h.mu.Lock()
	h.clients[client.ClientID] = client
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetAlertStreamClients(n)
}

// Unregister closes the client's channel. Unknown ids are ignored.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetAlertStreamClients(n)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Publish(message *alert.SSEMessage, groups ...string) int {
	h.mu.RLock()
	var delivered, dropped int
	for _, c := range h.clients {
		if !c.InAny(groups) {
			continue
		}
		select {
		case c.MessageChan <- message:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.RUnlock()
	h.metrics.AddAlertStreamDropped(dropped)
	return delivered
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	h.metrics.SetAlertStreamClients(0)
}
