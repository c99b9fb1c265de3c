// Package core defines the port interfaces that connect services to their
// collaborators (relational store, redis, browser automation). Repositories in
// internal/data and adapters elsewhere provide the concrete implementations;
// tests provide hand-rolled fakes.
package core

import (
	"context"
	"time"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// JobRepository provides persistence for jobs and their log trail.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// MarkProcessing transitions queued→processing, records startedAt and
	// increments the attempts counter. Returns the updated job.
	MarkProcessing(ctx context.Context, id string) (*model.Job, error)
	// MarkCompleted transitions processing→completed and sets finishedAt.
	MarkCompleted(ctx context.Context, id string) error
	// MarkFailed transitions processing→failed, sets finishedAt and the
	// captured error message.
	MarkFailed(ctx context.Context, id string, errMsg string) error
	AppendLog(ctx context.Context, jobID, level, message string) error
}

// RunRepository updates schedule-run counters as sibling jobs finish.
type RunRepository interface {
	// ApplyJobOutcome atomically bumps completedJobs or failedJobs and, when
	// the sum reaches totalJobs, sets the terminal status and finishedAt
	// exactly once. Safe under concurrent sibling completions and idempotent
	// once the run is full.
	ApplyJobOutcome(ctx context.Context, runID string, failed bool) (*model.ScheduleRun, error)
	GetByID(ctx context.Context, id string) (*model.ScheduleRun, error)
}

// SessionRepository provides persistence for remote sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*model.RemoteSession, error)
	// FindActive resolves an ACTIVE session, scoped to accountID when non-empty,
	// else to any session owned by userID.
	FindActive(ctx context.Context, userID, accountID string) (*model.RemoteSession, error)
	MarkActive(ctx context.Context, id string, verifiedAt time.Time, nickname *string) error
	MarkExpired(ctx context.Context, id string, reason string) error
	MarkError(ctx context.Context, id string, reason string) error
}

// AccountRepository provides persistence for remote accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*model.RemoteAccount, error)
	// RecordLoginResult updates status, lastLoginAt/Status/Error after a login attempt.
	RecordLoginResult(ctx context.Context, id string, success bool, loginErr string) error
}

// PostRepository upserts managed posts mirrored from the cafe.
type PostRepository interface {
	Upsert(ctx context.Context, params model.UpsertPostParams) (*model.ManagedPost, error)
}

// StatsRepository persists and prunes queue stats snapshots.
type StatsRepository interface {
	Insert(ctx context.Context, snap *model.QueueStatsSnapshot) error
	// Latest returns the most recent snapshot for a queue, or nil.
	Latest(ctx context.Context, queueName string) (*model.QueueStatsSnapshot, error)
	// NearestBefore returns the newest snapshot taken at or before t, or nil.
	NearestBefore(ctx context.Context, queueName string, t time.Time) (*model.QueueStatsSnapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// IncidentRepository drives the incident lifecycle. CreateOpen must map a
// unique-violation on the (type, queue, open) partial index to
// ErrIncidentAlreadyOpen so concurrent collector runs stay idempotent.
type IncidentRepository interface {
	GetOpen(ctx context.Context, typ model.IncidentType, queueName string) (*model.Incident, error)
	CreateOpen(ctx context.Context, inc *model.Incident) (*model.Incident, error)
	// UpdateOpen refreshes severity, affected jobs, and description in place.
	UpdateOpen(ctx context.Context, id string, severity model.IncidentSeverity, affectedJobs int64, description string) error
	Resolve(ctx context.Context, id, resolvedBy, reason string) error
}

// HeartbeatStore is the ordered key-value collaborator tracking fleet liveness.
type HeartbeatStore interface {
	// Beat upserts the worker into the ordered structure with the current
	// timestamp as score and writes the TTL'd detail blob.
	Beat(ctx context.Context, status model.WorkerStatus) error
	// Online returns worker IDs whose last beat is newer than now-threshold.
	Online(ctx context.Context, threshold time.Duration) ([]string, error)
	// CountOnline counts workers whose last beat is newer than now-threshold.
	CountOnline(ctx context.Context, threshold time.Duration) (int64, error)
	// Deregister removes the worker entry and detail blob on clean shutdown.
	Deregister(ctx context.Context, workerID string) error
	// PruneStale removes entries older than now-maxAge and returns the count.
	PruneStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// QueueInspector reads current depth counts and the pause flag from the queue.
type QueueInspector interface {
	Counts(ctx context.Context, queueName string) (model.QueueCounts, error)
}

// AutomationClient is one acquired browser session bound to a profile,
// exposing the cafe-specific flows handlers need. Implementations release the
// transient driver handle on release, never the persisted profile store.
type AutomationClient interface {
	// Login runs the automated credential flow. Returns
	// model.ErrLoginChallenge when a human-verification step is detected and
	// model.ErrBadCredentials on rejected credentials.
	Login(ctx context.Context, creds model.Credentials) error
	// IsAuthenticated runs the lightweight verification probe.
	IsAuthenticated(ctx context.Context) (bool, error)
	FetchNickname(ctx context.Context) (string, error)
	PublishPost(ctx context.Context, board model.BoardRef, post PublishRequest) (model.PublishedArticle, error)
	ListAuthoredArticles(ctx context.Context, cafeID, boardID string) ([]model.RemoteArticle, error)
}

// PublishRequest carries the content of one publish action.
type PublishRequest struct {
	Title      string
	Body       string
	ImagePaths []string
	Trade      *model.TradeMeta
}

// AutomationPool owns the persistent browser profiles. Acquire returns a
// client plus a release func that must run on every handler exit path.
type AutomationPool interface {
	Acquire(ctx context.Context, profileID string) (AutomationClient, func(), error)
	// SaveProfile serializes the profile's storage state to durable storage.
	SaveProfile(ctx context.Context, profileID string) error
	// Screenshot captures the profile's current page to a timestamped artifact
	// and returns its path. Used on failure paths before the evidence is gone.
	Screenshot(ctx context.Context, profileID, label string) (string, error)
	CloseProfile(ctx context.Context, profileID string) error
	CloseAll(ctx context.Context) error
}
