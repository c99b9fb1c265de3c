package model

import "time"

// QueueCounts is the instantaneous depth of one queue as read from Redis.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
}

// QueueStatsSnapshot is one append-only sample of queue depth and fleet size.
// JobsPerMin is nil on the first sample for a queue (no previous completed count).
type QueueStatsSnapshot struct {
	ID            string    `json:"id"             db:"id"`
	QueueName     string    `json:"queue_name"     db:"queue_name"`
	Waiting       int64     `json:"waiting"        db:"waiting"`
	Active        int64     `json:"active"         db:"active"`
	Delayed       int64     `json:"delayed"        db:"delayed"`
	Completed     int64     `json:"completed"      db:"completed"`
	Failed        int64     `json:"failed"         db:"failed"`
	Paused        bool      `json:"paused"         db:"paused"`
	JobsPerMin    *float64  `json:"jobs_per_min,omitempty" db:"jobs_per_min"`
	OnlineWorkers int64     `json:"online_workers" db:"online_workers"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
}

// IncidentType identifies the anomaly class of an incident.
type IncidentType string

// IncidentSeverity ranks how urgent an incident is.
type IncidentSeverity string

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	// IncidentTypeQueueBacklog flags an abnormal waiting-job depth.
	IncidentTypeQueueBacklog IncidentType = "queue_backlog"
	// IncidentTypeHighFailureRate flags an abnormal trailing failure percentage.
	IncidentTypeHighFailureRate IncidentType = "high_failure_rate"

	// IncidentSeverityMedium is the warning tier.
	IncidentSeverityMedium IncidentSeverity = "medium"
	// IncidentSeverityHigh is the critical tier.
	IncidentSeverityHigh IncidentSeverity = "high"

	// IncidentStatusActive marks a live, unacknowledged incident.
	IncidentStatusActive IncidentStatus = "active"
	// IncidentStatusAcknowledged marks an incident an operator has seen.
	// The detector only reads this state; it never sets it.
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	// IncidentStatusResolved marks a closed incident.
	IncidentStatusResolved IncidentStatus = "resolved"
)

// Open reports whether the incident still counts against the
// unique-open-per-(type,queue) constraint.
func (s IncidentStatus) Open() bool {
	return s == IncidentStatusActive || s == IncidentStatusAcknowledged
}

// Incident is a detected, persisted anomaly with severity and lifecycle status.
// At most one open incident exists per (Type, QueueName).
type Incident struct {
	ID                string           `json:"id"                    db:"id"`
	Type              IncidentType     `json:"type"                  db:"type"`
	Severity          IncidentSeverity `json:"severity"              db:"severity"`
	QueueName         string           `json:"queue_name"            db:"queue_name"`
	AffectedJobs      int64            `json:"affected_jobs"         db:"affected_jobs"`
	Title             string           `json:"title"                 db:"title"`
	Description       string           `json:"description"           db:"description"`
	RecommendedAction string           `json:"recommended_action"    db:"recommended_action"`
	Status            IncidentStatus   `json:"status"                db:"status"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy        *string          `json:"resolved_by,omitempty" db:"resolved_by"`
	CreatedAt         time.Time        `json:"created_at"            db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"            db:"updated_at"`
}

// WorkerStatus is the expiring detail blob written next to each heartbeat.
type WorkerStatus struct {
	WorkerID      string    `json:"worker_id"`
	Host          string    `json:"host"`
	PID           int       `json:"pid"`
	ActiveJobs    int64     `json:"active_jobs"`
	ProcessedJobs int64     `json:"processed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	StartedAt     time.Time `json:"started_at"`
}
