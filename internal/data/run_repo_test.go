package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeworks/postbot/internal/domain/model"
	"github.com/cafeworks/postbot/internal/testutil"
)

func insertRun(t *testing.T, db *sql.DB, totalJobs int) string {
	t.Helper()
	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO schedule_runs(total_jobs) VALUES ($1) RETURNING id
	`, totalJobs).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestRunRepo_ApplyJobOutcome_Settles(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		ctx := context.Background()
		runID := insertRun(t, db, 2)

		run, err := repo.ApplyJobOutcome(ctx, runID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, run.CompletedJobs)
		assert.Equal(t, 0, run.FailedJobs)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		require.NotNil(t, run.StartedAt)
		assert.Nil(t, run.FinishedAt)

		run, err = repo.ApplyJobOutcome(ctx, runID, true)
		require.NoError(t, err)
		assert.Equal(t, 1, run.CompletedJobs)
		assert.Equal(t, 1, run.FailedJobs)
		assert.Equal(t, model.RunStatusFailed, run.Status)
		require.NotNil(t, run.FinishedAt)
	})
}

func TestRunRepo_ApplyJobOutcome_AllCompleted(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		ctx := context.Background()
		runID := insertRun(t, db, 2)

		_, err := repo.ApplyJobOutcome(ctx, runID, false)
		require.NoError(t, err)
		run, err := repo.ApplyJobOutcome(ctx, runID, false)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, run.Status)
		assert.Equal(t, 2, run.CompletedJobs)
	})
}

func TestRunRepo_ApplyJobOutcome_IdempotentWhenFull(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		ctx := context.Background()
		runID := insertRun(t, db, 1)

		settled, err := repo.ApplyJobOutcome(ctx, runID, false)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, settled.Status)

		// A late duplicate outcome must not move the counters or the status.
		again, err := repo.ApplyJobOutcome(ctx, runID, true)
		require.NoError(t, err)
		assert.Equal(t, settled.CompletedJobs, again.CompletedJobs)
		assert.Equal(t, settled.FailedJobs, again.FailedJobs)
		assert.Equal(t, settled.Status, again.Status)
		require.NotNil(t, again.FinishedAt)
		assert.Equal(t, settled.FinishedAt.Unix(), again.FinishedAt.Unix())
	})
}

func TestRunRepo_ApplyJobOutcome_MissingRun(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)

		_, err := repo.ApplyJobOutcome(context.Background(), uuid.NewString(), false)
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestRunRepo_GetByID_NotFound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)

		_, err := repo.GetByID(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}
