package model

import "time"

// RunStatus represents the lifecycle status of a schedule run.
type RunStatus string

const (
	// RunStatusPending indicates a run whose jobs have not started yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates at least one sibling job has finished or started.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates all jobs finished with zero failures.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates all jobs finished and at least one failed.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the RunStatus is valid.
func (s RunStatus) Valid() bool {
	return s == RunStatusPending || s == RunStatusRunning || s == RunStatusCompleted ||
		s == RunStatusFailed
}

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ScheduleRun aggregates the jobs spawned by one scheduling trigger.
// Invariant: CompletedJobs+FailedJobs <= TotalJobs; the terminal status and
// FinishedAt are set exactly once, when the sum reaches TotalJobs.
type ScheduleRun struct {
	ID            string     `json:"id"                     db:"id"`
	TotalJobs     int        `json:"total_jobs"             db:"total_jobs"`
	CompletedJobs int        `json:"completed_jobs"         db:"completed_jobs"`
	FailedJobs    int        `json:"failed_jobs"            db:"failed_jobs"`
	Status        RunStatus  `json:"status"                 db:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"   db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"  db:"finished_at"`
	CreatedAt     time.Time  `json:"created_at"             db:"created_at"`
}
