// Package events fans job outcomes out to every configured sink.
package events

import (
	"fmt"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// Type names one kind of job event
type Type string

const (
	TypeAccepted  Type = "accepted"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
)

// Event is the JSON document delivered to sinks
type Event struct {
	Type      Type                     `json:"type"`
	ChatID    int64                    `json:"chat_id"`
	JobID     string                   `json:"job_id,omitempty"`
	Text      string                   `json:"text,omitempty"`
	Progress  *domain.ProgressUpdate   `json:"progress,omitempty"`
	Artifact  *domain.Artifact         `json:"artifact,omitempty"`
	Info      *domain.ExtractionResult `json:"info,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// CompletedText renders the completion line shown to a chat
func CompletedText(size int64) string {
	return fmt.Sprintf("Completed. Size: %.1f MB", float64(size)/(1024*1024))
}
