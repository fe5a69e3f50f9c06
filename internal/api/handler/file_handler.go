package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/media-relay/internal/api/dto"
)

// GetFile handles GET /api/v1/chats/:chat_id/files/:name
// Streams a finished artifact to the adapter for upload
func (h *DownloadHandler) GetFile(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}
	name := c.Param("name")

	path, size, err := h.supervisor.OpenArtifact(chatID, name)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.Debug("Serving artifact",
		slog.Int64("chat_id", chatID),
		slog.String("name", name),
		slog.Int64("size", size),
	)
	c.FileAttachment(path, name)
}

// AckFile handles POST /api/v1/chats/:chat_id/files/:name/ack
// Deletes the artifact once the adapter has delivered it
func (h *DownloadHandler) AckFile(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}
	name := c.Param("name")

	if err := h.supervisor.ReleaseArtifact(chatID, name); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Released."})
}
