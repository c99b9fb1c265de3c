package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// StatsRepo persists and prunes queue stats snapshots.
type StatsRepo struct {
	DB *sql.DB
}

// NewStatsRepo creates a new StatsRepo.
func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{DB: db}
}

const snapshotColumns = `
  id,
  queue_name,
  waiting,
  active,
  delayed,
  completed,
  failed,
  paused,
  jobs_per_min,
  online_workers,
  created_at
`

// Insert appends one snapshot row.
func (r *StatsRepo) Insert(ctx context.Context, snap *model.QueueStatsSnapshot) error {
	if snap == nil {
		return errors.New("snapshot is required")
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO queue_stats_snapshots
			(queue_name, waiting, active, delayed, completed, failed, paused, jobs_per_min, online_workers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		snap.QueueName, snap.Waiting, snap.Active, snap.Delayed, snap.Completed,
		snap.Failed, snap.Paused, snap.JobsPerMin, snap.OnlineWorkers, snap.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a queue, or nil when none exists.
func (r *StatsRepo) Latest(ctx context.Context, queueName string) (*model.QueueStatsSnapshot, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM queue_stats_snapshots
		WHERE queue_name = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, queueName)
	return scanOptionalSnapshot(row)
}

// NearestBefore returns the newest snapshot taken at or before t, or nil.
func (r *StatsRepo) NearestBefore(ctx context.Context, queueName string, t time.Time) (*model.QueueStatsSnapshot, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM queue_stats_snapshots
		WHERE queue_name = $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, queueName, t.UTC())
	return scanOptionalSnapshot(row)
}

// DeleteOlderThan evicts snapshots past the retention window.
func (r *StatsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM queue_stats_snapshots WHERE created_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots rows affected: %w", err)
	}
	return affected, nil
}

func scanOptionalSnapshot(row *sql.Row) (*model.QueueStatsSnapshot, error) {
	snap := &model.QueueStatsSnapshot{}
	var jobsPerMin sql.NullFloat64
	err := row.Scan(
		&snap.ID,
		&snap.QueueName,
		&snap.Waiting,
		&snap.Active,
		&snap.Delayed,
		&snap.Completed,
		&snap.Failed,
		&snap.Paused,
		&jobsPerMin,
		&snap.OnlineWorkers,
		&snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan stats snapshot: %w", err)
	}
	if jobsPerMin.Valid {
		v := jobsPerMin.Float64
		snap.JobsPerMin = &v
	}
	return snap, nil
}
