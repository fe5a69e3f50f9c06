package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedURL is returned when a URL does not belong to an enabled site
	ErrUnsupportedURL = errors.New("unsupported url")

	// ErrMaxDownloadsReached is returned when the registry is at capacity
	ErrMaxDownloadsReached = errors.New("max downloads reached")

	// ErrDownloadInProgress is returned when the chat already owns a job
	ErrDownloadInProgress = errors.New("download already in progress")

	// ErrDurationExceeded is returned when the probed media is longer than allowed
	ErrDurationExceeded = errors.New("duration exceeds limit")

	// ErrOutputNotFound is returned when the tool reported success but left no file
	ErrOutputNotFound = errors.New("output file not found")

	// ErrFileTooLarge is returned when the artifact exceeds the transport size limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoPendingChoice is returned when a chat has no job awaiting a format choice
	ErrNoPendingChoice = errors.New("no download awaiting format choice")

	// ErrInvalidFormat is returned for unknown format names
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidArtifact is returned for artifact names outside the output directory
	ErrInvalidArtifact = errors.New("invalid artifact name")

	// ErrNotAuthorized is returned when a chat is not on the allow list
	ErrNotAuthorized = errors.New("chat not authorized")
)

// ProbeError wraps any failure of the info-only probe
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// DownloadError is a non-zero exit of the download process.
// Retryable marks the format-mismatch class.
type DownloadError struct {
	ExitCode  int
	Stderr    string
	Retryable bool
	Err       error
}

func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download exited with code %d", e.ExitCode)
	if e.Retryable {
		msg += " (format unavailable)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when the process was killed at the wall-clock limit
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process killed after %s timeout", e.Timeout)
}

// IsRetryable reports whether err is a retryable download failure
func IsRetryable(err error) bool {
	var dlErr *DownloadError
	return errors.As(err, &dlErr) && dlErr.Retryable
}

// IsTimeout reports whether err is a timeout
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// UserError carries the short message shown to the chat next to the cause
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a user-facing message
func NewUserError(err error, format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...), Err: err}
}

// UserMessage maps an error to the short text that may be sent to a chat.
// Diagnostic detail never leaves the process log.
func UserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}

	var probeErr *ProbeError
	switch {
	case errors.As(err, &probeErr):
		return "Could not get video info."
	case errors.Is(err, ErrUnsupportedURL):
		return "URL not supported."
	case errors.Is(err, ErrMaxDownloadsReached):
		return "Max downloads reached."
	case errors.Is(err, ErrDownloadInProgress):
		return "Download in progress."
	case errors.Is(err, ErrDurationExceeded):
		return "Video too long."
	case errors.Is(err, ErrFileTooLarge):
		return "File too large."
	case errors.Is(err, ErrNoPendingChoice):
		return "Nothing to choose."
	case errors.Is(err, ErrInvalidFormat):
		return "Unknown format."
	case errors.Is(err, ErrNotAuthorized):
		return "Not authorized."
	case IsTimeout(err):
		return "Download timed out."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	default:
		return "Download failed."
	}
}
