package domain

import "time"

// Job is one active download owned by the supervisor
type Job struct {
	ID        string
	ChatID    int64
	URL       string
	Format    Format
	State     State
	StartedAt time.Time
	Bytes     int64
	Rate      float64 // bytes per second
	Info      *ExtractionResult
}

// ExtractionResult is the output of an info-only probe
type ExtractionResult struct {
	Title         string  `json:"title"`
	Duration      float64 `json:"duration"` // seconds
	Uploader      string  `json:"uploader"`
	EstimatedSize int64   `json:"estimated_size"`
}

// DurationMinutes returns the duration in minutes
func (r ExtractionResult) DurationMinutes() float64 {
	return r.Duration / 60
}

// ActiveJob is a read-only snapshot of a registered job
type ActiveJob struct {
	JobID     string        `json:"job_id"`
	ChatID    int64         `json:"chat_id"`
	URL       string        `json:"url"`
	Format    Format        `json:"format,omitempty"`
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Bytes     int64         `json:"bytes"`
	Rate      float64       `json:"rate"`
}

// Artifact is a finished output file handed to the adapter
type Artifact struct {
	JobID  string `json:"job_id"`
	ChatID int64  `json:"chat_id"`
	Format Format `json:"format"`
	Path   string `json:"-"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// SubmitResult describes how a submission continued after the probe
type SubmitResult struct {
	JobID          string           `json:"job_id"`
	Info           ExtractionResult `json:"info"`
	AutoDownload   bool             `json:"auto_download"`
	AwaitingChoice bool             `json:"awaiting_choice"`
}

// ProgressUpdate is one throttled status line
type ProgressUpdate struct {
	Text  string  `json:"text"`
	Bytes int64   `json:"bytes"`
	Rate  float64 `json:"rate,omitempty"`
}

// Reporter receives the asynchronous outcome of a download.
// Progress errors are ignored by the caller.
type Reporter interface {
	Progress(update ProgressUpdate) error
	Completed(artifact Artifact)
	Failed(message string)
}
