package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	// CancelledByUserReason is recorded when a user cancels a job.
	CancelledByUserReason = "cancelled by user"
	// DaemonStopReason is recorded when shutdown interrupts a running job.
	DaemonStopReason = "daemon stopped"
	// InterruptedReason is recorded for jobs found processing after a restart.
	InterruptedReason = "interrupted by daemon restart"
)

// ParseStatus converts a string to a Status.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// Terminal reports whether the status is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one generation request and its lifecycle state.
type Job struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	Prompt      string    `json:"prompt"`
	MediaType   string    `json:"media_type"`
	ProviderID  string    `json:"provider_id"`
	Model       string    `json:"model,omitempty"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	Duration    int       `json:"duration,omitempty"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	ResultURL   string    `json:"result_url,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Params are the inputs for Enqueue.
type Params struct {
	Prompt      string
	MediaType   string
	ProviderID  string
	Model       string
	AspectRatio string
	Duration    int
}

// Stats counts jobs per status.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the number of jobs counted.
func (s Stats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Active returns the number of pending and processing jobs.
func (s Stats) Active() int {
	return s.Pending + s.Processing
}
