package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"codearena/internal/arena/model"
	"codearena/pkg/utils/logger"
)

// Handler receives lifecycle callbacks and inbound client messages.
// The arena services implement it; the hub stays transport-only.
type Handler interface {
	// HandleConnect fires after a client is registered.
	HandleConnect(ctx context.Context, userID int64)

	// HandleDisconnect fires after a client is unregistered.
	HandleDisconnect(ctx context.Context, userID int64)

	// HandleMessage dispatches one inbound message.
	HandleMessage(ctx context.Context, userID int64, msgType string, payload json.RawMessage)
}

// Hub tracks connected clients and fans events out to them.
// One goroutine owns the clients map; all mutations go through channels.
type Hub struct {
	handler Handler

	clients    map[int64]*Client
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewHub creates a hub. SetHandler must be called before Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetHandler wires the message handler. Must happen before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Run processes register/unregister events until Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.userID]; ok {
				// A second connection replaces the first.
				close(old.send)
			}
			h.clients[client.userID] = client
			h.mu.Unlock()
			logger.Debug(context.Background(), "ws client registered", zap.Int64("user_id", client.userID))
			if h.handler != nil {
				h.handler.HandleConnect(context.Background(), client.userID)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.userID]
			if ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()
			if ok && current == client {
				logger.Debug(context.Background(), "ws client unregistered", zap.Int64("user_id", client.userID))
				if h.handler != nil {
					h.handler.HandleDisconnect(context.Background(), client.userID)
				}
			}

		case <-h.stopCh:
			h.mu.Lock()
			for _, client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[int64]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and waits for Run to exit.
func (h *Hub) Stop() {
	close(h.stopCh)
	<-h.done
}

// SendToUser delivers one event to one connected user. Events for
// disconnected users are dropped; match state replay covers the gap.
func (h *Hub) SendToUser(userID int64, event model.Event) {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- event:
	default:
		logger.Warn(context.Background(), "ws send buffer full, dropping event",
			zap.Int64("user_id", userID),
			zap.String("event", event.Type))
	}
}

// SendToUsers delivers one event to a set of users.
func (h *Hub) SendToUsers(userIDs []int64, event model.Event) {
	for _, id := range userIDs {
		h.SendToUser(id, event)
	}
}

// Connected reports whether the user currently has a live connection.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
