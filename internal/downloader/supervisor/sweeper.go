package supervisor

import (
	"context"
	"log/slog"
	"time"
)

// RequestCleanup removes output files older than the retention age
func (s *Supervisor) RequestCleanup() (int, error) {
	if s.cleanupAfter <= 0 {
		return 0, nil
	}
	return s.storage.Sweep(s.cleanupAfter)
}

// RunSweeper sweeps the output directory every interval until ctx is done
func (s *Supervisor) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || s.cleanupAfter <= 0 {
		s.logger.Info("Periodic cleanup disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("max_age", s.cleanupAfter),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
			// errors are logged by storage; the next tick retries
			_, _ = s.RequestCleanup()
		}
	}
}
