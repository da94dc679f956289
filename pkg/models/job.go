package models

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// TranscriptStatus is the user-facing verdict on transcript availability.
type TranscriptStatus string

const (
	TranscriptNotAvailable             TranscriptStatus = "not_available"
	TranscriptAvailable                TranscriptStatus = "available"
	TranscriptFailed                   TranscriptStatus = "failed"
	TranscriptAPIAvailableButNoExtract TranscriptStatus = "api_available_but_extraction_failed"
)

// AnalysisJob tracks one URL-to-markdown run. Transcript text is never
// stored here, only where it came from.
type AnalysisJob struct {
	JobID     string    `json:"job_id"`
	VideoURL  string    `json:"video_url"`
	VideoID   string    `json:"video_id"`
	Model     string    `json:"model"`
	PromptID  string    `json:"prompt_id"`
	MaxTokens int       `json:"max_tokens"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`

	Title             string           `json:"title"`
	Filename          string           `json:"filename"`
	Markdown          string           `json:"markdown,omitempty"`
	TranscriptStatus  TranscriptStatus `json:"transcript_status"`
	TranscriptSource  string           `json:"transcript_source"`
	CaptionProbeError string           `json:"caption_probe_error,omitempty"`

	Error       string    `json:"error"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`

	// set by the queue that delivered the job, used for Ack/Nack
	DeliveryTag uint64 `json:"-"`
	Delivery    any    `json:"-"`
}

// Done reports whether the job reached a terminal state.
func (j *AnalysisJob) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
