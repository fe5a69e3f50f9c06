package dto

type SubmitDownloadRequest struct {
	URL string `json:"url" binding:"required"`
}

type SubmitDownloadResponse struct {
	JobID           string  `json:"job_id"`
	Title           string  `json:"title"`
	Uploader        string  `json:"uploader"`
	DurationMinutes float64 `json:"duration_minutes"`
	EstimatedSizeMB float64 `json:"estimated_size_mb"`
	AutoDownload    bool    `json:"auto_download"`
	AwaitingChoice  bool    `json:"awaiting_choice"`
	Message         string  `json:"message"`
}

type ChoiceRequest struct {
	Format string `json:"format" binding:"required,oneof=video audio cancel"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Active int      `json:"active"`
	Max    int      `json:"max"`
	Jobs   []JobDTO `json:"jobs"`
}

type JobDTO struct {
	JobID          string  `json:"job_id"`
	ChatID         int64   `json:"chat_id"`
	URL            string  `json:"url"`
	Format         string  `json:"format,omitempty"`
	State          string  `json:"state"`
	StartedAt      string  `json:"started_at"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	DownloadedMB   float64 `json:"downloaded_mb"`
	RateMBps       float64 `json:"rate_mbps"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

type SitesResponse struct {
	Sites []string `json:"sites"`
}
