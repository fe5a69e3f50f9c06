package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// probeRecord is the subset of the tool's JSON dump the relay reads
type probeRecord struct {
	Title          string   `json:"title"`
	Duration       *float64 `json:"duration"`
	Uploader       string   `json:"uploader"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

// Probe runs the info-only invocation and parses its record
func (r *Runner) Probe(ctx context.Context, url string) (domain.ExtractionResult, error) {
	result, err := r.Run(ctx, r.probeTimeout, r.probeArgs(url)...)
	if err != nil {
		r.logger.Error("Error getting video info",
			slog.String("url", url),
			slog.Int("exit_code", result.ExitCode),
			slog.String("error", err.Error()),
			slog.String("stderr", lastLine(result.Stderr)),
		)
		return domain.ExtractionResult{}, &domain.ProbeError{URL: url, Err: err}
	}

	info, err := parseProbe(result.Stdout)
	if err != nil {
		r.logger.Error("Malformed probe output",
			slog.String("url", url),
			slog.Int("stdout_bytes", len(result.Stdout)),
			slog.String("error", err.Error()),
		)
		return domain.ExtractionResult{}, &domain.ProbeError{URL: url, Err: err}
	}

	r.logger.Info("Probe completed",
		slog.String("url", url),
		slog.String("title", info.Title),
		slog.Float64("duration_seconds", info.Duration),
		slog.Int64("estimated_size", info.EstimatedSize),
	)
	return info, nil
}

// parseProbe reads the first JSON record from the tool's stdout
func parseProbe(out []byte) (domain.ExtractionResult, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdoutBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec probeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("failed to parse probe json: %w", err)
		}
		return rec.toResult(), nil
	}

	if err := scanner.Err(); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("failed to read probe output: %w", err)
	}
	return domain.ExtractionResult{}, errors.New("empty probe output")
}

func (rec probeRecord) toResult() domain.ExtractionResult {
	res := domain.ExtractionResult{
		Title:    rec.Title,
		Uploader: rec.Uploader,
	}
	if res.Title == "" {
		res.Title = "Unknown"
	}
	if res.Uploader == "" {
		res.Uploader = "Unknown"
	}
	if rec.Duration != nil && *rec.Duration > 0 {
		res.Duration = *rec.Duration
	}

	switch {
	case rec.Filesize != nil && *rec.Filesize > 0:
		res.EstimatedSize = int64(*rec.Filesize)
	case rec.FilesizeApprox != nil && *rec.FilesizeApprox > 0:
		res.EstimatedSize = int64(*rec.FilesizeApprox)
	case res.Duration > 0:
		res.EstimatedSize = int64(res.DurationMinutes() * domain.BytesPerMinuteEstimate)
	}
	return res
}
