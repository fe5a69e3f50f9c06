package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuongbtq/media-relay/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one websocket subscriber of a chat's events
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan events.Event
	chatID int64
	logger *slog.Logger
}

// Upgrader returns a websocket upgrader accepting the given origins.
// An empty list or "*" accepts any origin.
func Upgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 || allowed["*"] {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

// Serve registers the connection with the hub and starts its pumps
func (h *Hub) Serve(conn *websocket.Conn, chatID int64) {
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan events.Event, sendBuffer),
		chatID: chatID,
		logger: h.logger,
	}
	if !h.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for close frames and keeps the read deadline alive
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Stream read error",
					slog.Int64("chat_id", c.chatID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug("Stream write error",
					slog.Int64("chat_id", c.chatID),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
