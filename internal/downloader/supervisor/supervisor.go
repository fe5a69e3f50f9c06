// Package supervisor owns the lifecycle of every download job: admission,
// probing, the format decision, the download process and its teardown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/downloader/registry"
	"github.com/cuongbtq/media-relay/internal/downloader/runner"
	"github.com/cuongbtq/media-relay/internal/downloader/sites"
	"github.com/cuongbtq/media-relay/internal/downloader/storage"
)

// DefaultChoiceTimeout bounds how long a probed job waits for a format choice
const DefaultChoiceTimeout = 10 * time.Minute

// Runner is the subset of the process runner used by the supervisor
type Runner interface {
	Probe(ctx context.Context, url string) (domain.ExtractionResult, error)
	Download(ctx context.Context, req runner.Request) error
}

// Config holds supervisor configuration
type Config struct {
	Logger  *slog.Logger
	Runner  Runner
	Storage *storage.Storage

	MaxConcurrent            int
	DownloadTimeout          time.Duration
	MaxDurationMinutes       int
	AutoDownloadUnderMinutes int
	Quality                  string
	ShowProgress             bool
	ProgressInterval         time.Duration
	MaxFileSizeMB            int
	CleanupAfter             time.Duration
	ChoiceTimeout            time.Duration
	EnabledSites             map[string]bool
}

// Supervisor runs download jobs, one per chat
type Supervisor struct {
	logger   *slog.Logger
	runner   Runner
	storage  *storage.Storage
	registry *registry.Registry

	downloadTimeout  time.Duration
	maxDuration      int
	autoUnder        int
	quality          string
	showProgress     bool
	progressInterval time.Duration
	maxFileSizeMB    int
	cleanupAfter     time.Duration
	choiceTimeout    time.Duration
	enabledSites     map[string]bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a supervisor. Jobs started by it are canceled by Shutdown.
func New(cfg *Config) *Supervisor {
	choiceTimeout := cfg.ChoiceTimeout
	if choiceTimeout <= 0 {
		choiceTimeout = DefaultChoiceTimeout
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		logger:           cfg.Logger,
		runner:           cfg.Runner,
		storage:          cfg.Storage,
		registry:         registry.New(maxConcurrent),
		downloadTimeout:  cfg.DownloadTimeout,
		maxDuration:      cfg.MaxDurationMinutes,
		autoUnder:        cfg.AutoDownloadUnderMinutes,
		quality:          cfg.Quality,
		showProgress:     cfg.ShowProgress,
		progressInterval: cfg.ProgressInterval,
		maxFileSizeMB:    cfg.MaxFileSizeMB,
		cleanupAfter:     cfg.CleanupAfter,
		choiceTimeout:    choiceTimeout,
		enabledSites:     cfg.EnabledSites,
		baseCtx:          ctx,
		cancel:           cancel,
		now:              time.Now,
	}
}

// EnabledSites lists the enabled site names in a stable order
func (s *Supervisor) EnabledSites() []string {
	return sites.EnabledSites(s.enabledSites)
}

// Submit admits and probes a URL for the chat. When the media qualifies for
// automatic download the transfer starts in the background and its outcome is
// delivered to rep; otherwise the job waits for ChooseFormat or Cancel.
// Errors before the transfer starts are returned directly.
func (s *Supervisor) Submit(ctx context.Context, chatID int64, url string, rep domain.Reporter) (domain.SubmitResult, error) {
	if !sites.IsSupported(url, s.enabledSites) {
		return domain.SubmitResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedURL, url)
	}

	job := domain.Job{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		URL:       url,
		State:     domain.StateAdmitted,
		StartedAt: s.now(),
	}

	if err := s.registry.Admit(job); err != nil {
		if errors.Is(err, domain.ErrMaxDownloadsReached) {
			return domain.SubmitResult{}, domain.NewUserError(err, "Max downloads (%d) reached.", s.registry.Max())
		}
		return domain.SubmitResult{}, err
	}

	s.logger.Info("Job admitted",
		slog.String("job_id", job.ID),
		slog.Int64("chat_id", chatID),
		slog.String("url", url),
	)

	info, err := s.probe(ctx, job)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result := domain.SubmitResult{JobID: job.ID, Info: info}

	if s.autoUnder > 0 && info.DurationMinutes() < float64(s.autoUnder) {
		running, ok := s.registry.Transition(chatID, domain.StateProbing, domain.StateDownloading)
		if !ok {
			return domain.SubmitResult{}, fmt.Errorf("job %s: %w", result.JobID, context.Canceled)
		}
		s.registry.Update(chatID, running.ID, func(j *domain.Job) { j.Format = domain.FormatVideo })
		running.Format = domain.FormatVideo

		if !s.start(running, rep) {
			return domain.SubmitResult{}, fmt.Errorf("job %s: %w", result.JobID, context.Canceled)
		}
		result.AutoDownload = true
		return result, nil
	}

	if _, ok := s.registry.Transition(chatID, domain.StateProbing, domain.StateAwaitingChoice); !ok {
		return domain.SubmitResult{}, fmt.Errorf("job %s: %w", result.JobID, context.Canceled)
	}

	timer := time.AfterFunc(s.choiceTimeout, func() {
		s.expireChoice(chatID, result.JobID, rep)
	})
	s.registry.Attach(chatID, result.JobID, func() { timer.Stop() })

	s.logger.Info("Job awaiting format choice",
		slog.String("job_id", result.JobID),
		slog.Int64("chat_id", chatID),
		slog.Duration("expires_in", s.choiceTimeout),
	)

	result.AwaitingChoice = true
	return result, nil
}

// probe runs the info-only pass and applies the duration policy.
// On any failure the job is released before returning.
func (s *Supervisor) probe(ctx context.Context, job domain.Job) (domain.ExtractionResult, error) {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.registry.Transition(job.ChatID, domain.StateAdmitted, domain.StateProbing)
	s.registry.Attach(job.ChatID, job.ID, cancel)

	info, err := s.runner.Probe(probeCtx, job.URL)
	if err != nil {
		if !s.registry.Remove(job.ChatID, job.ID) {
			return domain.ExtractionResult{}, fmt.Errorf("job %s: %w", job.ID, context.Canceled)
		}
		s.logger.Warn("Probe failed",
			slog.String("job_id", job.ID),
			slog.Int64("chat_id", job.ChatID),
			slog.String("error", err.Error()),
		)
		return domain.ExtractionResult{}, err
	}

	s.registry.Update(job.ChatID, job.ID, func(j *domain.Job) { j.Info = &info })

	minutes := info.DurationMinutes()
	if s.maxDuration > 0 && minutes > float64(s.maxDuration) {
		s.registry.Remove(job.ChatID, job.ID)
		s.logger.Info("Job rejected, duration over limit",
			slog.String("job_id", job.ID),
			slog.Float64("duration_minutes", minutes),
			slog.Int("max_minutes", s.maxDuration),
		)
		return domain.ExtractionResult{}, domain.NewUserError(
			fmt.Errorf("%w: %.1f min", domain.ErrDurationExceeded, minutes),
			"Video too long (%.1f min). Max: %d min.", minutes, s.maxDuration,
		)
	}

	return info, nil
}

// ChooseFormat starts the transfer for a job awaiting a format choice
func (s *Supervisor) ChooseFormat(ctx context.Context, chatID int64, format domain.Format, rep domain.Reporter) error {
	format, err := domain.ParseFormat(string(format))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	job, ok := s.registry.Transition(chatID, domain.StateAwaitingChoice, domain.StateDownloading)
	if !ok {
		return fmt.Errorf("%w: chat %d", domain.ErrNoPendingChoice, chatID)
	}
	s.registry.Update(chatID, job.ID, func(j *domain.Job) { j.Format = format })
	job.Format = format

	s.logger.Info("Format chosen",
		slog.String("job_id", job.ID),
		slog.Int64("chat_id", chatID),
		slog.String("format", string(format)),
	)

	if !s.start(job, rep) {
		return fmt.Errorf("job %s: %w", job.ID, context.Canceled)
	}
	return nil
}

// Cancel drops the chat's job. A pending choice is dropped without process
// work; a running transfer has its process killed.
func (s *Supervisor) Cancel(chatID int64) error {
	job, ok := s.registry.Get(chatID)
	if !ok {
		return fmt.Errorf("%w: chat %d", domain.ErrNoPendingChoice, chatID)
	}
	if !s.registry.Remove(chatID, job.ID) {
		return fmt.Errorf("%w: chat %d", domain.ErrNoPendingChoice, chatID)
	}

	s.logger.Info("Job canceled",
		slog.String("job_id", job.ID),
		slog.Int64("chat_id", chatID),
		slog.String("state", string(job.State)),
	)
	return nil
}

func (s *Supervisor) expireChoice(chatID int64, jobID string, rep domain.Reporter) {
	if _, ok := s.registry.RemoveInState(chatID, jobID, domain.StateAwaitingChoice); !ok {
		return
	}
	s.logger.Info("Format choice expired",
		slog.String("job_id", jobID),
		slog.Int64("chat_id", chatID),
	)
	rep.Failed("Request expired.")
}

// Status returns a snapshot of every active job
func (s *Supervisor) Status() []domain.ActiveJob {
	return s.registry.Snapshot()
}

// MaxConcurrent returns the admission limit
func (s *Supervisor) MaxConcurrent() int {
	return s.registry.Max()
}

// Shutdown cancels every running job and waits for their goroutines to finish
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping supervisor...", slog.Int("active_jobs", s.registry.Len()))
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Supervisor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop supervisor: %w", ctx.Err())
	}
}
