package websocket

import (
	"sync"

	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast channel for job events
	broadcast chan *Message

	done     chan struct{}
	stopOnce sync.Once

	metrics *metrics.Metrics

	mu sync.RWMutex
}

// Message is the envelope written to every client.
type Message struct {
	Type  string          `json:"type"`
	Event *download.Event `json:"event,omitempty"`
}

const MessageTypeJobEvent = "job_event"

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		done:       make(chan struct{}),
	}
}

// WithMetrics reports the connected client count to m. Call before Run.
func (h *Hub) WithMetrics(m *metrics.Metrics) *Hub {
	h.metrics = m
	return h
}

// clientsChanged must be called with h.mu held
func (h *Hub) clientsChanged() {
	if h.metrics != nil {
		h.metrics.SetWSConnections(int64(len(h.clients)))
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.clientsChanged()
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.clientsChanged()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full, close the connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.clientsChanged()
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.clientsChanged()
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// BroadcastEvent sends a job event to all connected clients. It is a no-op
// once the hub is stopped.
func (h *Hub) BroadcastEvent(ev download.Event) {
	select {
	case h.broadcast <- &Message{Type: MessageTypeJobEvent, Event: &ev}:
	case <-h.done:
	}
}

// Register adds a client. It reports false once the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
