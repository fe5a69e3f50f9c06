package domain

import (
	"fmt"
	"strings"
)

// Format is the media kind requested for a download
type Format string

// Supported download formats
const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// ParseFormat converts user input into a Format
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatVideo:
		return FormatVideo, nil
	case FormatAudio:
		return FormatAudio, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

// State is a job lifecycle state
type State string

// Job states
const (
	StateAdmitted       State = "ADMITTED"
	StateProbing        State = "PROBING"
	StateAwaitingChoice State = "AWAITING_CHOICE"
	StateDownloading    State = "DOWNLOADING"
	StateRetrying       State = "RETRYING"
	StateResolving      State = "RESOLVING"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
	StateTimedOut       State = "TIMED_OUT"
	StateCanceled       State = "CANCELED"
)

// IsTerminal reports whether the state ends the job
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCanceled:
		return true
	}
	return false
}

// IsTransferring reports whether the extraction tool is writing output
func (s State) IsTransferring() bool {
	return s == StateDownloading || s == StateRetrying
}

const (
	// FormatMismatchSignature is the extraction tool's stderr marker for an unavailable format
	FormatMismatchSignature = "Requested format is not available"

	// FallbackSelector is the format selector used for the single format-mismatch retry
	FallbackSelector = "best"

	// BytesPerMinuteEstimate is the size heuristic when the tool reports no filesize
	BytesPerMinuteEstimate = 1024 * 1024
)
