package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/view"
)

// Message types pushed to WebSocket clients.
const (
	MessageTypeSnapshot = "snapshot"
)

// ServerMessage is one frame sent to a WebSocket client.
type ServerMessage struct {
	Type      string        `json:"type"`
	Payload   view.Snapshot `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
}

// Hub maintains the set of connected dashboards and fans snapshots out to them.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan view.Snapshot
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan view.Snapshot, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case snap := <-h.broadcast:
			h.broadcastSnapshot(snap)
		}
	}
}

// Register adds a client to the hub. It reports false once the hub has shut down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues a snapshot for every client. When the queue is full the
// snapshot is dropped; a newer one always follows.
func (h *Hub) Broadcast(snap view.Snapshot) {
	select {
	case h.broadcast <- snap:
	default:
		h.logger.Warn("broadcast buffer full, dropping snapshot")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.clients[c] = true
	h.logger.Info("client connected", zap.String("client", c.ID), zap.Int("total", len(h.clients)))
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
		h.logger.Info("client disconnected", zap.String("client", c.ID), zap.Int("total", len(h.clients)))
	}
}

func (h *Hub) broadcastSnapshot(snap view.Snapshot) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	msg := ServerMessage{Type: MessageTypeSnapshot, Payload: snap, Timestamp: time.Now()}
	for _, c := range clients {
		if !c.TrySend(msg) {
			// Too slow to keep up.
			h.logger.Warn("client buffer full, disconnecting", zap.String("client", c.ID))
			go h.Unregister(c)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.logger.Info("shutting down hub", zap.Int("clients", len(h.clients)))
	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
}
