package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/denster32/HealthAI-2030-sub022/internal/events"
)

// ErrHubBusy is returned when the broadcast queue is full
var ErrHubBusy = errors.New("websocket hub broadcast queue is full")

// Message is the envelope every WebSocket message uses
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// Run delivers broadcasts until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.Send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("API: websocket client registered", "remote", client.remote())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("API: websocket client unregistered", "remote", client.remote())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow client; drop it rather than block everyone
					h.logger.Warn("API: websocket client send buffer full, removing", "remote", client.remote())
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// RegisterClient adds a client. It returns false when the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes a client and closes its send channel
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a typed message to all clients. It implements
// notify.Broadcaster and never blocks.
func (h *Hub) Broadcast(kind string, payload interface{}) error {
	data, err := json.Marshal(Message{Type: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", kind, err)
	}
	select {
	case <-h.done:
		return fmt.Errorf("websocket hub stopped")
	default:
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return ErrHubBusy
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ForwardEvents broadcasts every event from sub until ctx is done or the
// subscription closes
func (h *Hub) ForwardEvents(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.Broadcast("event", ev); err != nil {
				h.logger.Debug("API: event not broadcast", "event_type", ev.Type, "error", err)
			}
		}
	}
}
