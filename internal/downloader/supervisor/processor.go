package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/downloader/progress"
	"github.com/cuongbtq/media-relay/internal/downloader/runner"
	"github.com/cuongbtq/media-relay/internal/downloader/storage"
)

const bytesPerMB = 1024 * 1024

// start launches the transfer goroutine. The job context is canceled when
// the job leaves the registry, which also stops its progress monitor.
// It reports false when the job was removed before the transfer could start.
func (s *Supervisor) start(job domain.Job, rep domain.Reporter) bool {
	var ctx context.Context
	var cancel context.CancelFunc
	if s.downloadTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.downloadTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}

	if !s.registry.Attach(job.ChatID, job.ID, cancel) {
		cancel()
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processJob(ctx, job, rep)
	}()
	return true
}

// processJob runs one transfer to a terminal outcome. The deferred finalizer
// is the only release point: it removes the job, then reports the outcome.
func (s *Supervisor) processJob(ctx context.Context, job domain.Job, rep domain.Reporter) {
	prefix := storage.Prefix(job.ChatID, s.now())

	var artifact domain.Artifact
	var err error
	defer func() {
		s.registry.Remove(job.ChatID, job.ID)
		if err != nil {
			rep.Failed(domain.UserMessage(err))
			return
		}
		rep.Completed(artifact)
	}()

	s.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.Int64("chat_id", job.ChatID),
		slog.String("format", string(job.Format)),
		slog.String("prefix", prefix),
	)

	if s.showProgress {
		s.watch(ctx, job, prefix, rep)
	}

	artifact, err = s.execute(ctx, job, prefix)
	if err != nil {
		removed := s.storage.Remove(prefix)
		s.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.Int64("chat_id", job.ChatID),
			slog.String("state", string(terminalState(ctx, err))),
			slog.Int("files_removed", removed),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Job completed successfully",
		slog.String("job_id", job.ID),
		slog.Int64("chat_id", job.ChatID),
		slog.String("artifact", artifact.Name),
		slog.Int64("size", artifact.Size),
	)
}

// watch starts the progress monitor for the job
func (s *Supervisor) watch(ctx context.Context, job domain.Job, prefix string, rep domain.Reporter) {
	monitor := progress.NewMonitor(&progress.Config{
		Logger:   s.logger.With(slog.String("job_id", job.ID)),
		Interval: s.progressInterval,
		Sample: func() (int64, error) {
			return s.storage.CurrentSize(prefix)
		},
		Active: func() bool {
			return s.registry.Contains(job.ChatID, job.ID)
		},
		Report: rep.Progress,
		Record: func(bytes int64, rate float64) {
			s.registry.Update(job.ChatID, job.ID, func(j *domain.Job) {
				j.Bytes = bytes
				j.Rate = rate
			})
		},
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitor.Run(ctx)
	}()
}

// execute downloads, resolves the output file and applies the size policy
func (s *Supervisor) execute(ctx context.Context, job domain.Job, prefix string) (domain.Artifact, error) {
	if err := s.download(ctx, job, s.storage.Template(prefix)); err != nil {
		return domain.Artifact{}, s.classify(ctx, err)
	}

	s.registry.Update(job.ChatID, job.ID, func(j *domain.Job) { j.State = domain.StateResolving })

	path, size, err := s.storage.Resolve(prefix)
	if err != nil {
		return domain.Artifact{}, err
	}

	if s.maxFileSizeMB > 0 && size > int64(s.maxFileSizeMB)*bytesPerMB {
		if delErr := s.storage.Delete(path); delErr != nil {
			s.logger.Warn("Failed to delete oversized file",
				slog.String("path", path),
				slog.String("error", delErr.Error()),
			)
		}
		return domain.Artifact{}, domain.NewUserError(
			fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, size),
			"File too large (%.1f MB). Max: %d MB", float64(size)/bytesPerMB, s.maxFileSizeMB,
		)
	}

	artifact := domain.Artifact{
		JobID:  job.ID,
		ChatID: job.ChatID,
		Format: job.Format,
		Path:   path,
		Name:   filepath.Base(path),
		Size:   size,
	}
	if current, ok := s.registry.Get(job.ChatID); ok && current.ID == job.ID && current.Info != nil {
		artifact.Title = current.Info.Title
		artifact.Artist = current.Info.Uploader
	}
	if job.Format == domain.FormatAudio {
		s.applyTags(&artifact)
	}

	return artifact, nil
}

// download runs the transfer, retrying once with the plain selector when a
// video format is unavailable
func (s *Supervisor) download(ctx context.Context, job domain.Job, template string) error {
	req := runner.Request{
		URL:            job.URL,
		Format:         job.Format,
		Selector:       s.selector(job.Format),
		OutputTemplate: template,
	}

	err := s.runner.Download(ctx, req)
	if err == nil || !shouldRetry(job.Format, err) || ctx.Err() != nil {
		return err
	}

	s.logger.Warn("Requested format unavailable, retrying with fallback",
		slog.String("job_id", job.ID),
		slog.String("selector", domain.FallbackSelector),
	)
	s.registry.Update(job.ChatID, job.ID, func(j *domain.Job) { j.State = domain.StateRetrying })

	req.Selector = domain.FallbackSelector
	return s.runner.Download(ctx, req)
}

func (s *Supervisor) selector(format domain.Format) string {
	if format == domain.FormatAudio {
		return ""
	}
	if s.quality == "" {
		return "best/worst"
	}
	return s.quality + "/best/worst"
}

func shouldRetry(format domain.Format, err error) bool {
	return format == domain.FormatVideo && domain.IsRetryable(err)
}

// classify maps a context-driven stop to the matching error
func (s *Supervisor) classify(ctx context.Context, err error) error {
	if domain.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.TimeoutError{Timeout: s.downloadTimeout}
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("download stopped: %w", context.Canceled)
	}
	return err
}

func terminalState(ctx context.Context, err error) domain.State {
	switch {
	case domain.IsTimeout(err):
		return domain.StateTimedOut
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return domain.StateCanceled
	default:
		return domain.StateFailed
	}
}
