// Package progress samples the size of a running download and emits
// throttled status lines.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

const (
	// MinInterval is the floor for the sampling interval
	MinInterval = 2 * time.Second

	// DefaultInterval is used when no interval is configured
	DefaultInterval = 3 * time.Second

	// DefaultThreshold is the growth required before another update is emitted
	DefaultThreshold = 512 * 1024

	markerCycle = 4
	mib         = 1024 * 1024
)

// Config holds monitor configuration
type Config struct {
	Logger    *slog.Logger
	Interval  time.Duration
	Threshold int64

	// Sample returns the current output size in bytes
	Sample func() (int64, error)
	// Active reports whether the job is still registered
	Active func() bool
	// Report delivers an update; its errors are swallowed
	Report func(domain.ProgressUpdate) error
	// Record stores the latest sample on the job, optional
	Record func(bytes int64, rate float64)
}

// Monitor polls one job's output while it transfers
type Monitor struct {
	logger    *slog.Logger
	interval  time.Duration
	threshold int64
	sample    func() (int64, error)
	active    func() bool
	report    func(domain.ProgressUpdate) error
	record    func(int64, float64)

	count       int
	lastEmitted int64
	lastSize    int64
	lastSample  time.Time
}

// NewMonitor creates a monitor, enforcing the interval floor
func NewMonitor(cfg *Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Monitor{
		logger:    cfg.Logger,
		interval:  interval,
		threshold: threshold,
		sample:    cfg.Sample,
		active:    cfg.Active,
		report:    cfg.Report,
		record:    cfg.Record,
	}
}

// Interval returns the effective sampling interval
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run polls until ctx is done or the job leaves the registry.
// It performs no cleanup of its own.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.lastSample = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if m.active != nil && !m.active() {
				return
			}
			m.step(now)
		}
	}
}

// step takes one sample and emits an update when growth exceeds the threshold
func (m *Monitor) step(now time.Time) bool {
	size, err := m.sample()
	if err != nil {
		m.logger.Debug("Progress sample failed", slog.String("error", err.Error()))
		return false
	}

	var rate float64
	if elapsed := now.Sub(m.lastSample).Seconds(); elapsed > 0 && size > m.lastSize {
		rate = float64(size-m.lastSize) / elapsed
	}
	m.lastSize = size
	m.lastSample = now

	if m.record != nil {
		m.record(size, rate)
	}

	if size-m.lastEmitted <= m.threshold {
		return false
	}

	m.lastEmitted = size
	m.count++

	update := domain.ProgressUpdate{
		Text:  FormatStatus(m.count, size, rate),
		Bytes: size,
		Rate:  rate,
	}
	if err := m.report(update); err != nil {
		m.logger.Debug("Progress update not delivered", slog.String("error", err.Error()))
	}
	return true
}

// FormatStatus renders "Downloading.. 12.3 MB (1.5 MB/s)"
func FormatStatus(count int, size int64, rate float64) string {
	var b strings.Builder
	b.WriteString("Downloading")
	b.WriteString(strings.Repeat(".", count%markerCycle))
	fmt.Fprintf(&b, " %.1f MB", float64(size)/mib)
	if rate > 0 {
		fmt.Fprintf(&b, " (%.1f MB/s)", rate/mib)
	}
	return b.String()
}
