package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cafeworks/postbot/internal/data/pgxutil"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// JobRepo provides database operations for job lifecycle management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// JobRepoConfig holds optional configuration for the job repository.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const jobColumns = `
  id,
  type,
  status,
  payload,
  user_id,
  account_id,
  run_id,
  attempts,
  started_at,
  finished_at,
  error_message,
  created_at,
  updated_at
`

// Create inserts a new queued job together with its first log line.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var job *model.Job
	txErr := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, `
				INSERT INTO jobs(type, status, payload, user_id, account_id, run_id)
				VALUES ($1, 'queued', $2, $3, $4, $5)
				RETURNING `+jobColumns,
				req.Type, payload, req.UserID, req.AccountID, req.RunID,
			)
			j, scanErr := scanJob(row)
			if scanErr != nil {
				return fmt.Errorf("insert job: %w", scanErr)
			}
			if _, logErr := tx.ExecContext(ctx, `
				INSERT INTO job_logs(job_id, level, message) VALUES ($1, 'info', 'job queued')
			`, j.ID); logErr != nil {
				return fmt.Errorf("append initial job log: %w", logErr)
			}
			job = j
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a queued job to processing, recording startedAt
// and incrementing the attempts counter. Redelivered jobs re-enter processing
// from failed/processing as well, since the external queue may redeliver after
// a crash without the row having settled.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing',
		    started_at = $2,
		    attempts = attempts + 1,
		    finished_at = NULL,
		    error_message = NULL,
		    updated_at = $2
		WHERE id = $1 AND status IN ('queued', 'processing', 'failed')
		RETURNING `+jobColumns, id, now)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish missing from non-transitionable for the caller.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrJobNotTransitionable
	}
	if err != nil {
		return nil, fmt.Errorf("mark job processing: %w", err)
	}
	return job, nil
}

// MarkCompleted transitions a processing job to completed and sets finishedAt.
func (r *JobRepo) MarkCompleted(ctx context.Context, id string) error {
	return r.finish(ctx, id, model.JobStatusCompleted, "")
}

// MarkFailed transitions a processing job to failed with the captured error message.
func (r *JobRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.finish(ctx, id, model.JobStatusFailed, errMsg)
}

func (r *JobRepo) finish(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	now := r.timeProvider.Now().UTC()
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    finished_at = $3,
		    error_message = $4,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, status, now, msg)
	if err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job %s rows affected: %w", status, err)
	}
	if affected == 0 {
		return ErrJobNotTransitionable
	}
	return nil
}

// AppendLog appends one line to the per-job audit trail.
func (r *JobRepo) AppendLog(ctx context.Context, jobID, level, message string) error {
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_logs(job_id, level, message) VALUES ($1, $2, $3)
	`, jobID, level, message); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// Logs returns the audit trail of a job, oldest first.
func (r *JobRepo) Logs(ctx context.Context, jobID string) ([]model.JobLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, job_id, level, message, created_at
		FROM job_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var entries []model.JobLogEntry
	for rows.Next() {
		var e model.JobLogEntry
		if scanErr := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Message, &e.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan job log: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return entries, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		payload                    []byte
		accountID, runID, errorMsg sql.NullString
		startedAt, finishedAt      sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&payload,
		&job.UserID,
		&accountID,
		&runID,
		&job.Attempts,
		&startedAt,
		&finishedAt,
		&errorMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = cloneJSON(payload)
	job.AccountID = cloneNullableString(accountID)
	job.RunID = cloneNullableString(runID)
	job.ErrorMessage = cloneNullableString(errorMsg)
	job.StartedAt = cloneNullableTime(startedAt)
	job.FinishedAt = cloneNullableTime(finishedAt)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
