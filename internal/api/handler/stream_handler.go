package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cuongbtq/media-relay/internal/stream"
)

// StreamHandler upgrades chat event subscriptions to websockets
type StreamHandler struct {
	logger    *slog.Logger
	hub       *stream.Hub
	upgrader  websocket.Upgrader
	authorize func(int64) bool
}

// NewStreamHandler creates a new StreamHandler instance
func NewStreamHandler(deps *Dependencies) *StreamHandler {
	return &StreamHandler{
		logger:    deps.Logger,
		hub:       deps.Hub,
		upgrader:  stream.Upgrader(deps.AllowedOrigins),
		authorize: authorizer(deps.Authorize),
	}
}

// Events handles GET /api/v1/chats/:chat_id/events
func (h *StreamHandler) Events(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.hub.Serve(conn, chatID)
}
