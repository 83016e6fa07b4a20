package models

import "time"

// PendingMutation is one offline-originated change persisted until the next
// flush pass. Payload is the JSON-encoded StatusUpdate or PODSubmission.
type PendingMutation struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	JobID      int64     `json:"job_id"`
	Payload    string    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// StatusUpdate is the remote contract for updateJobStatus.
type StatusUpdate struct {
	JobID          int64  `json:"job_id"`
	Status         string `json:"status,omitempty"`
	DriverStatus   string `json:"driver_status,omitempty"`
	ProblemDetails string `json:"problem_details,omitempty"`
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name"`
}

// PODSubmission is the remote contract for submitPOD. Photo and signature
// values are opaque URL handles; blob storage is an external collaborator.
type PODSubmission struct {
	JobID        int64     `json:"job_id"`
	PhotoURLs    []string  `json:"photo_urls"`
	SignatureURL *string   `json:"signature_url,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// HasEvidence reports whether the submission carries at least one photo or
// a signature. Empty submissions are rejected locally.
func (p PODSubmission) HasEvidence() bool {
	return len(p.PhotoURLs) > 0 || (p.SignatureURL != nil && *p.SignatureURL != "")
}

// SyncTask is a queued schedule-mirror job for the Sheets worker.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BoardDate   string     `json:"board_date"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
