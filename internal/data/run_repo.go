package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// RunRepo provides database operations for schedule runs.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRunRepo creates a new RunRepo with the real time provider.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRunRepoWithTimeProvider creates a new RunRepo with a custom time provider (useful for tests).
func NewRunRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RunRepo {
	return &RunRepo{DB: db, timeProvider: tp}
}

const runColumns = `
  id,
  total_jobs,
  completed_jobs,
  failed_jobs,
  status,
  started_at,
  finished_at,
  created_at
`

// applyOutcomeSQL bumps exactly one counter and derives the terminal status in
// a single statement. Column references on the right-hand side read the
// pre-update row, so the guard and the CASE arms see a consistent snapshot
// even under concurrent sibling completions; the WHERE guard keeps
// completed_jobs+failed_jobs from ever exceeding total_jobs, which also makes
// repeated application of a late duplicate a no-op.
const applyOutcomeSQL = `
  UPDATE schedule_runs
  SET
    completed_jobs = completed_jobs + $2,
    failed_jobs    = failed_jobs + $3,
    status = CASE
      WHEN completed_jobs + failed_jobs + 1 >= total_jobs THEN
        CASE WHEN failed_jobs + $3 = 0 THEN 'completed' ELSE 'failed' END
      ELSE 'running'
    END,
    started_at  = COALESCE(started_at, $4),
    finished_at = CASE
      WHEN completed_jobs + failed_jobs + 1 >= total_jobs THEN COALESCE(finished_at, $4)
      ELSE finished_at
    END
  WHERE id = $1 AND completed_jobs + failed_jobs < total_jobs
  RETURNING ` + runColumns

// ApplyJobOutcome atomically applies one sibling-job outcome to the run.
// Returns the post-update run, or the unchanged run when the counters were
// already full (idempotent re-application).
func (r *RunRepo) ApplyJobOutcome(ctx context.Context, runID string, failed bool) (*model.ScheduleRun, error) {
	completedDelta, failedDelta := 1, 0
	if failed {
		completedDelta, failedDelta = 0, 1
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, applyOutcomeSQL, runID, completedDelta, failedDelta, now)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the run does not exist or it is already full; re-read to tell.
		return r.GetByID(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("apply job outcome: %w", err)
	}
	return run, nil
}

// GetByID retrieves a schedule run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.ScheduleRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM schedule_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule run: %w", err)
	}
	return run, nil
}

func scanRun(scanner jobRowScanner) (*model.ScheduleRun, error) {
	run := &model.ScheduleRun{}
	var startedAt, finishedAt sql.NullTime
	if err := scanner.Scan(
		&run.ID,
		&run.TotalJobs,
		&run.CompletedJobs,
		&run.FailedJobs,
		&run.Status,
		&startedAt,
		&finishedAt,
		&run.CreatedAt,
	); err != nil {
		return nil, err
	}
	run.StartedAt = cloneNullableTime(startedAt)
	run.FinishedAt = cloneNullableTime(finishedAt)
	return run, nil
}
