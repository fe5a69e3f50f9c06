// Package stream pushes job events to websocket subscribers of a chat.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cuongbtq/media-relay/internal/events"
)

var (
	// ErrHubBusy is returned when the broadcast queue is full
	ErrHubBusy = errors.New("event stream busy")
	// ErrHubStopped is returned once Run has exited
	ErrHubStopped = errors.New("event stream stopped")
)

const broadcastQueue = 256

// Hub maintains the set of subscribed clients per chat
type Hub struct {
	logger     *slog.Logger
	clients    map[int64]map[*Client]bool
	broadcast  chan events.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new hub; Run must be started before clients connect
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[int64]map[*Client]bool),
		broadcast:  make(chan events.Event, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for chatID, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, chatID)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.chatID] == nil {
				h.clients[client.chatID] = make(map[*Client]bool)
			}
			h.clients[client.chatID][client] = true
			h.mu.Unlock()
			h.logger.Debug("Stream client connected", slog.Int64("chat_id", client.chatID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("Stream client disconnected", slog.Int64("chat_id", client.chatID))

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[event.ChatID] {
				select {
				case client.send <- event:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients[event.ChatID], client)
				}
			}
			if len(h.clients[event.ChatID]) == 0 {
				delete(h.clients, event.ChatID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.chatID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
	}
	if len(clients) == 0 {
		delete(h.clients, client.chatID)
	}
}

// Deliver queues the event for the chat's subscribers. It implements events.Sink.
// Progress is dropped when the queue is full; a job's final event waits for
// room until ctx is done.
func (h *Hub) Deliver(ctx context.Context, event events.Event) error {
	if event.Type == events.TypeCompleted || event.Type == events.TypeFailed {
		select {
		case h.broadcast <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return ErrHubStopped
		}
	}

	select {
	case h.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrHubBusy
	}
}

// ClientCount returns the number of subscribers for a chat
func (h *Hub) ClientCount(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[chatID])
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
