package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/events"
	"github.com/cuongbtq/media-relay/internal/stream"
)

// Supervisor is the core surface exposed over HTTP
type Supervisor interface {
	Submit(ctx context.Context, chatID int64, url string, rep domain.Reporter) (domain.SubmitResult, error)
	ChooseFormat(ctx context.Context, chatID int64, format domain.Format, rep domain.Reporter) error
	Cancel(chatID int64) error
	Status() []domain.ActiveJob
	MaxConcurrent() int
	RequestCleanup() (int, error)
	OpenArtifact(chatID int64, name string) (string, int64, error)
	ReleaseArtifact(chatID int64, name string) error
	EnabledSites() []string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Supervisor  Supervisor
	Broadcaster *events.Broadcaster
	Hub         *stream.Hub
	// Authorize reports whether a chat may use the service; nil allows all
	Authorize      func(chatID int64) bool
	AllowedOrigins []string
}

// DownloadHandler handles chat download requests
type DownloadHandler struct {
	logger      *slog.Logger
	supervisor  Supervisor
	broadcaster *events.Broadcaster
	authorize   func(int64) bool
}

// NewDownloadHandler creates a new DownloadHandler instance
func NewDownloadHandler(deps *Dependencies) *DownloadHandler {
	return &DownloadHandler{
		logger:      deps.Logger,
		supervisor:  deps.Supervisor,
		broadcaster: deps.Broadcaster,
		authorize:   authorizer(deps.Authorize),
	}
}

func authorizer(fn func(int64) bool) func(int64) bool {
	if fn == nil {
		return func(int64) bool { return true }
	}
	return fn
}
