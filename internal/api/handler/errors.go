package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/media-relay/internal/api/dto"
	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// statusFor maps core errors to HTTP status codes
func statusFor(err error) int {
	var probeErr *domain.ProbeError
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnsupportedURL),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidArtifact):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMaxDownloadsReached):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDownloadInProgress),
		errors.Is(err, domain.ErrNoPendingChoice),
		errors.Is(err, context.Canceled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDurationExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOutputNotFound):
		return http.StatusNotFound
	case errors.As(err, &probeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the short user message for err
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), dto.ErrorResponse{Error: domain.UserMessage(err)})
}

// chatParam parses :chat_id and enforces the allow list
func chatParam(c *gin.Context, authorize func(int64) bool) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "chat_id must be an integer"})
		return 0, false
	}
	if !authorize(chatID) {
		abortWithError(c, domain.ErrNotAuthorized)
		return 0, false
	}
	return chatID, true
}
