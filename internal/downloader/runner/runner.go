// Package runner executes the external extraction tool as a child process.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

const (
	// DefaultBinary is the extraction tool looked up in PATH
	DefaultBinary = "yt-dlp"

	// DefaultProbeTimeout bounds the info-only probe
	DefaultProbeTimeout = 60 * time.Second

	// waitDelay bounds how long Wait blocks on pipes held open by grandchildren after a kill
	waitDelay = 3 * time.Second

	stderrTailBytes = 64 * 1024
	maxStdoutBytes  = 32 * 1024 * 1024
)

// Config holds runner configuration
type Config struct {
	Logger       *slog.Logger
	Binary       string
	ProbeTimeout time.Duration
	AudioFormat  string
	VideoFormat  string
	Proxy        string
}

// Runner spawns the extraction tool
type Runner struct {
	logger       *slog.Logger
	binary       string
	probeTimeout time.Duration
	audioFormat  string
	videoFormat  string
	proxy        string
}

// Result is the captured outcome of one process run
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
	Elapsed  time.Duration
}

// Request describes one download invocation
type Request struct {
	URL            string
	Format         domain.Format
	Selector       string
	OutputTemplate string
}

// NewRunner creates a new runner instance
func NewRunner(cfg *Config) *Runner {
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	return &Runner{
		logger:       cfg.Logger,
		binary:       binary,
		probeTimeout: probeTimeout,
		audioFormat:  cfg.AudioFormat,
		videoFormat:  cfg.VideoFormat,
		proxy:        cfg.Proxy,
	}
}

// Run executes the tool with args and waits for it to exit.
// A positive timeout adds a wall-clock limit on top of ctx; when either deadline
// passes the process group is killed and a *domain.TimeoutError is returned.
// A non-zero exit returns the populated Result together with an *exec.ExitError.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) (Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limit := timeout
	if deadline, ok := runCtx.Deadline(); ok && limit <= 0 {
		limit = time.Until(deadline).Round(time.Second)
	}

	cmd := exec.CommandContext(runCtx, r.binary, args...)
	configureProcess(cmd)
	cmd.WaitDelay = waitDelay

	stdout := &limitedBuffer{limit: maxStdoutBytes}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", r.binary, err)
	}

	r.logger.Debug("Extraction tool started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("args", strings.Join(args, " ")),
	)

	waitErr := cmd.Wait()
	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Elapsed:  time.Since(start),
	}

	if waitErr == nil {
		return result, nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.logger.Warn("Extraction tool killed at timeout",
				slog.Duration("timeout", limit),
				slog.Duration("elapsed", result.Elapsed),
			)
			return result, &domain.TimeoutError{Timeout: limit}
		}
		return result, ctxErr
	}

	return result, fmt.Errorf("%s exited: %w", r.binary, waitErr)
}

// Download runs one download attempt and classifies its failure
func (r *Runner) Download(ctx context.Context, req Request) error {
	args := r.downloadArgs(req)

	r.logger.Info("Starting download",
		slog.String("url", req.URL),
		slog.String("format", string(req.Format)),
		slog.String("selector", req.Selector),
	)

	result, err := r.Run(ctx, 0, args...)
	if err == nil {
		r.logger.Info("Download finished",
			slog.String("url", req.URL),
			slog.Duration("elapsed", result.Elapsed),
		)
		return nil
	}

	if domain.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return err
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &domain.DownloadError{ExitCode: result.ExitCode, Err: err}
	}

	dlErr := &domain.DownloadError{
		ExitCode:  result.ExitCode,
		Stderr:    result.Stderr,
		Retryable: strings.Contains(result.Stderr, domain.FormatMismatchSignature),
		Err:       err,
	}

	r.logger.Error("Download error",
		slog.String("url", req.URL),
		slog.Int("exit_code", result.ExitCode),
		slog.Bool("format_unavailable", dlErr.Retryable),
		slog.String("stderr", lastLine(result.Stderr)),
	)
	return dlErr
}

// limitedBuffer keeps at most limit bytes and drops the rest
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
