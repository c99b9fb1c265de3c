// Package model defines the core data types and structures used throughout the postbot job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of automation job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeInitSession establishes a fresh authenticated browser session for an account.
	JobTypeInitSession JobType = "init_session"
	// JobTypeVerifySession probes an existing session and re-authenticates if needed.
	JobTypeVerifySession JobType = "verify_session"
	// JobTypeCreatePost publishes a post into one or more cafe boards.
	JobTypeCreatePost JobType = "create_post"
	// JobTypeSyncPosts pulls the remote list of authored articles into managed_posts.
	JobTypeSyncPosts JobType = "sync_posts"
	// JobTypeDeletePost is reserved; deletion is handled by an external collaborator.
	JobTypeDeletePost JobType = "delete_post"

	// JobStatusQueued indicates a job is waiting to be delivered.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates a job is currently being processed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job failed on its final delivery attempt.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeInitSession, JobTypeVerifySession, JobTypeCreatePost, JobTypeSyncPosts, JobTypeDeletePost:
		return true
	default:
		return false
	}
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Job represents one unit of automation work with a typed payload and persisted lifecycle status.
type Job struct {
	ID           string          `json:"id"                       db:"id"`
	Type         JobType         `json:"type"                     db:"type"`
	Status       JobStatus       `json:"status"                   db:"status"`
	Payload      json.RawMessage `json:"payload"                  db:"payload"`
	UserID       string          `json:"user_id"                  db:"user_id"`
	AccountID    *string         `json:"account_id,omitempty"     db:"account_id"`
	RunID        *string         `json:"run_id,omitempty"         db:"run_id"`
	Attempts     int             `json:"attempts"                 db:"attempts"`
	StartedAt    *time.Time      `json:"started_at,omitempty"     db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"    db:"finished_at"`
	ErrorMessage *string         `json:"error_message,omitempty"  db:"error_message"`
	CreatedAt    time.Time       `json:"created_at"               db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"               db:"updated_at"`
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	UserID    string          `json:"user_id"`
	AccountID *string         `json:"account_id,omitempty"`
	RunID     *string         `json:"run_id,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}

// JobLogEntry is a single line of the per-job audit trail.
type JobLogEntry struct {
	ID        int64     `json:"id"         db:"id"`
	JobID     string    `json:"job_id"     db:"job_id"`
	Level     string    `json:"level"      db:"level"`
	Message   string    `json:"message"    db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
