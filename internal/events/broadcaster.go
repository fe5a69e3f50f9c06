package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

const deliverTimeout = 10 * time.Second

// Sink receives job events
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Broadcaster delivers every event to all sinks
type Broadcaster struct {
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time
}

// NewBroadcaster creates a broadcaster; nil sinks are skipped
func NewBroadcaster(logger *slog.Logger, sinks ...Sink) *Broadcaster {
	b := &Broadcaster{logger: logger, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Emit stamps the event and delivers it to every sink, joining their errors
func (b *Broadcaster) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	var errs []error
	for _, s := range b.sinks {
		if err := s.Deliver(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reporter returns a domain.Reporter publishing the chat's job outcomes
func (b *Broadcaster) Reporter(chatID int64) domain.Reporter {
	return &reporter{b: b, chatID: chatID}
}

type reporter struct {
	b      *Broadcaster
	chatID int64
}

func (r *reporter) Progress(update domain.ProgressUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	return r.b.Emit(ctx, Event{
		Type:     TypeProgress,
		ChatID:   r.chatID,
		Text:     update.Text,
		Progress: &update,
	})
}

func (r *reporter) Completed(artifact domain.Artifact) {
	r.emit(Event{
		Type:     TypeCompleted,
		ChatID:   r.chatID,
		JobID:    artifact.JobID,
		Text:     CompletedText(artifact.Size),
		Artifact: &artifact,
	})
}

func (r *reporter) Failed(message string) {
	r.emit(Event{
		Type:   TypeFailed,
		ChatID: r.chatID,
		Text:   message,
	})
}

func (r *reporter) emit(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if err := r.b.Emit(ctx, event); err != nil {
		r.b.logger.Warn("Failed to deliver job event",
			slog.Int64("chat_id", r.chatID),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}
