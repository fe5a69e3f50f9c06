package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/media-relay/internal/api/dto"
	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

const bytesPerMB = 1024 * 1024

// SubmitDownload handles POST /api/v1/chats/:chat_id/downloads
// Probes the URL and either starts the transfer or waits for a format choice
func (h *DownloadHandler) SubmitDownload(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}

	var req dto.SubmitDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.supervisor.Submit(c.Request.Context(), chatID, req.URL, h.broadcaster.Reporter(chatID))
	if err != nil {
		abortWithError(c, err)
		return
	}

	info := result.Info
	resp := dto.SubmitDownloadResponse{
		JobID:           result.JobID,
		Title:           info.Title,
		Uploader:        info.Uploader,
		DurationMinutes: info.DurationMinutes(),
		EstimatedSizeMB: float64(info.EstimatedSize) / bytesPerMB,
		AutoDownload:    result.AutoDownload,
		AwaitingChoice:  result.AwaitingChoice,
	}
	if result.AwaitingChoice {
		resp.Message = fmt.Sprintf("%s (%.1f min). Choose video or audio.", info.Title, info.DurationMinutes())
	} else {
		resp.Message = fmt.Sprintf("Downloading %s (%.1f min)...", info.Title, info.DurationMinutes())
	}

	c.JSON(http.StatusAccepted, resp)
}

// ChooseFormat handles POST /api/v1/chats/:chat_id/choice
func (h *DownloadHandler) ChooseFormat(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}

	var req dto.ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "format must be one of video, audio, cancel"})
		return
	}

	if req.Format == "cancel" {
		if err := h.supervisor.Cancel(chatID); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.MessageResponse{Message: "Cancelled."})
		return
	}

	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.supervisor.ChooseFormat(c.Request.Context(), chatID, format, h.broadcaster.Reporter(chatID)); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.MessageResponse{Message: fmt.Sprintf("Downloading %s...", format)})
}

// CancelDownload handles DELETE /api/v1/chats/:chat_id/downloads
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	chatID, ok := chatParam(c, h.authorize)
	if !ok {
		return
	}
	if err := h.supervisor.Cancel(chatID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Cancelled."})
}

// Status handles GET /api/v1/downloads
func (h *DownloadHandler) Status(c *gin.Context) {
	active := h.supervisor.Status()

	jobs := make([]dto.JobDTO, 0, len(active))
	for _, job := range active {
		jobs = append(jobs, dto.JobDTO{
			JobID:          job.JobID,
			ChatID:         job.ChatID,
			URL:            job.URL,
			Format:         string(job.Format),
			State:          string(job.State),
			StartedAt:      job.StartedAt.Format(time.RFC3339),
			ElapsedSeconds: int64(job.Elapsed.Seconds()),
			DownloadedMB:   float64(job.Bytes) / bytesPerMB,
			RateMBps:       job.Rate / bytesPerMB,
		})
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		Active: len(jobs),
		Max:    h.supervisor.MaxConcurrent(),
		Jobs:   jobs,
	})
}

// Cleanup handles POST /api/v1/cleanup
func (h *DownloadHandler) Cleanup(c *gin.Context) {
	removed, err := h.supervisor.RequestCleanup()
	if err != nil {
		h.logger.Error("Cleanup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Cleanup failed."})
		return
	}
	c.JSON(http.StatusOK, dto.CleanupResponse{Removed: removed})
}

// Sites handles GET /api/v1/sites
func (h *DownloadHandler) Sites(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SitesResponse{Sites: h.supervisor.EnabledSites()})
}
