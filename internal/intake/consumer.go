package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/events"
)

// Supervisor is the core surface driven by queued commands
type Supervisor interface {
	Submit(ctx context.Context, chatID int64, url string, rep domain.Reporter) (domain.SubmitResult, error)
	ChooseFormat(ctx context.Context, chatID int64, format domain.Format, rep domain.Reporter) error
	Cancel(chatID int64) error
	Status() []domain.ActiveJob
}

// Config holds consumer configuration
type Config struct {
	Logger      *slog.Logger
	Supervisor  Supervisor
	Broadcaster *events.Broadcaster
	Authorize   func(chatID int64) bool
	Concurrency int
}

// Consumer dispatches queued commands to a pool of handlers
type Consumer struct {
	logger      *slog.Logger
	supervisor  Supervisor
	broadcaster *events.Broadcaster
	authorize   func(int64) bool
	concurrency int
	jobs        chan amqp.Delivery
	wg          sync.WaitGroup
}

// NewConsumer creates a new consumer instance
func NewConsumer(cfg *Config) *Consumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	authorize := cfg.Authorize
	if authorize == nil {
		authorize = func(int64) bool { return true }
	}

	return &Consumer{
		logger:      cfg.Logger,
		supervisor:  cfg.Supervisor,
		broadcaster: cfg.Broadcaster,
		authorize:   authorize,
		concurrency: concurrency,
		jobs:        make(chan amqp.Delivery),
	}
}

// Run consumes deliveries until ctx is done or the delivery channel closes
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	c.logger.Info("Starting command consumer", slog.Int("concurrency", c.concurrency))

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx, i)
	}

	c.dispatch(ctx, deliveries)
	close(c.jobs)
	c.wg.Wait()

	c.logger.Info("Command consumer stopped")
	return nil
}

// dispatch forwards deliveries to the pool
func (c *Consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			select {
			case c.jobs <- delivery:
			case <-ctx.Done():
				if err := delivery.Nack(false, true); err != nil {
					c.logger.Error("Failed to NACK message on shutdown", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func (c *Consumer) workerLoop(ctx context.Context, workerNum int) {
	defer c.wg.Done()

	for delivery := range c.jobs {
		err := c.process(ctx, delivery.Body)
		if errors.Is(err, ErrInvalidCommand) {
			c.logger.Error("Dropping malformed command",
				slog.Int("worker_num", workerNum),
				slog.String("error", err.Error()),
				slog.String("body", string(delivery.Body)),
			)
			if nackErr := delivery.Nack(false, false); nackErr != nil {
				c.logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
			}
			continue
		}

		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
	}
}

// process runs one command. Rejections are reported to the chat as failed
// events; only malformed commands return an error.
func (c *Consumer) process(ctx context.Context, body []byte) error {
	cmd, err := ParseCommand(body)
	if err != nil {
		return err
	}

	rep := c.broadcaster.Reporter(cmd.ChatID)
	if !c.authorize(cmd.ChatID) {
		rep.Failed(domain.UserMessage(domain.ErrNotAuthorized))
		return nil
	}

	switch cmd.Action {
	case ActionDownload:
		result, err := c.supervisor.Submit(ctx, cmd.ChatID, cmd.URL, rep)
		if err != nil {
			c.reject(rep, cmd, err)
			return nil
		}
		c.accepted(ctx, cmd.ChatID, result)

	case ActionChoose:
		if err := c.supervisor.ChooseFormat(ctx, cmd.ChatID, cmd.Format, rep); err != nil {
			c.reject(rep, cmd, err)
		}

	case ActionCancel:
		pending := c.pendingChoice(cmd.ChatID)
		if err := c.supervisor.Cancel(cmd.ChatID); err != nil {
			c.reject(rep, cmd, err)
			return nil
		}
		// a running transfer reports its own cancellation
		if pending {
			rep.Failed(domain.UserMessage(context.Canceled))
		}
	}

	return nil
}

func (c *Consumer) pendingChoice(chatID int64) bool {
	for _, job := range c.supervisor.Status() {
		if job.ChatID == chatID {
			return job.State == domain.StateAwaitingChoice
		}
	}
	return false
}

func (c *Consumer) accepted(ctx context.Context, chatID int64, result domain.SubmitResult) {
	text := fmt.Sprintf("%s (%.1f min)", result.Info.Title, result.Info.DurationMinutes())
	if result.AwaitingChoice {
		text += ". Choose video or audio."
	}
	info := result.Info
	if err := c.broadcaster.Emit(ctx, events.Event{
		Type:   events.TypeAccepted,
		ChatID: chatID,
		JobID:  result.JobID,
		Text:   text,
		Info:   &info,
	}); err != nil {
		c.logger.Warn("Failed to deliver accepted event", slog.String("error", err.Error()))
	}
}

func (c *Consumer) reject(rep domain.Reporter, cmd Command, err error) {
	c.logger.Info("Command rejected",
		slog.String("action", string(cmd.Action)),
		slog.Int64("chat_id", cmd.ChatID),
		slog.String("error", err.Error()),
	)
	rep.Failed(domain.UserMessage(err))
}
