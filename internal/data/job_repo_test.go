package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeworks/postbot/internal/domain/model"
	"github.com/cafeworks/postbot/internal/testutil"
)

func deletePayload() json.RawMessage {
	return json.RawMessage(`{"cafe_id":"c1","article_id":"a1"}`)
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})
		ctx := context.Background()

		job, err := repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobTypeDeletePost,
			Payload: deletePayload(),
			UserID:  "user-1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusQueued, job.Status)
		assert.Equal(t, 0, job.Attempts)
		assert.JSONEq(t, string(deletePayload()), string(job.Payload))

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)

		// Creation writes the first audit line in the same transaction.
		logs, err := repo.Logs(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "job queued", logs[0].Message)
	})
}

func TestJobRepo_Create_Invalid(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})
		ctx := context.Background()

		_, err := repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobType("explode"),
			Payload: deletePayload(),
			UserID:  "user-1",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid job type")

		_, err = repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobTypeDeletePost,
			Payload: deletePayload(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user id")
	})
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})

		_, err := repo.GetByID(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobRepo_Lifecycle(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})
		ctx := context.Background()

		job, err := repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobTypeDeletePost,
			Payload: deletePayload(),
			UserID:  "user-1",
		})
		require.NoError(t, err)

		processing, err := repo.MarkProcessing(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, processing.Status)
		assert.Equal(t, 1, processing.Attempts)
		require.NotNil(t, processing.StartedAt)

		require.NoError(t, repo.MarkCompleted(ctx, job.ID))
		done, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, done.Status)
		require.NotNil(t, done.FinishedAt)

		// A settled job neither completes again nor re-enters processing.
		assert.ErrorIs(t, repo.MarkCompleted(ctx, job.ID), ErrJobNotTransitionable)
		_, err = repo.MarkProcessing(ctx, job.ID)
		assert.ErrorIs(t, err, ErrJobNotTransitionable)
	})
}

func TestJobRepo_RedeliveryAfterFailure(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})
		ctx := context.Background()

		job, err := repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobTypeDeletePost,
			Payload: deletePayload(),
			UserID:  "user-1",
		})
		require.NoError(t, err)

		_, err = repo.MarkProcessing(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, job.ID, "browser crashed"))

		failed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, failed.Status)
		require.NotNil(t, failed.ErrorMessage)
		assert.Equal(t, "browser crashed", *failed.ErrorMessage)

		// The queue may redeliver a failed job; the second attempt starts clean.
		second, err := repo.MarkProcessing(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, second.Attempts)
		assert.Nil(t, second.ErrorMessage)
		assert.Nil(t, second.FinishedAt)
	})
}

func TestJobRepo_AppendLog(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, JobRepoConfig{})
		ctx := context.Background()

		job, err := repo.Create(ctx, &model.CreateJobRequest{
			Type:    model.JobTypeDeletePost,
			Payload: deletePayload(),
			UserID:  "user-1",
		})
		require.NoError(t, err)

		require.NoError(t, repo.AppendLog(ctx, job.ID, "warn", "first"))
		require.NoError(t, repo.AppendLog(ctx, job.ID, "error", "second"))

		logs, err := repo.Logs(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "first", logs[1].Message)
		assert.Equal(t, "warn", logs[1].Level)
		assert.Equal(t, "second", logs[2].Message)
	})
}
