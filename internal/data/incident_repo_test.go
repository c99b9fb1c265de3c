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

func backlogIncident(queueName string) *model.Incident {
	return &model.Incident{
		Type:              model.IncidentTypeQueueBacklog,
		Severity:          model.IncidentSeverityMedium,
		QueueName:         queueName,
		AffectedJobs:      120,
		Title:             "queue backlog on " + queueName,
		Description:       "wait depth 120",
		RecommendedAction: "scale workers",
	}
}

func TestIncidentRepo_OpenLifecycle(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIncidentRepo(db)
		ctx := context.Background()

		created, err := repo.CreateOpen(ctx, backlogIncident("posting"))
		require.NoError(t, err)
		assert.Equal(t, model.IncidentStatusActive, created.Status)
		assert.EqualValues(t, 120, created.AffectedJobs)

		// The open partial index admits one open incident per (type, queue).
		_, err = repo.CreateOpen(ctx, backlogIncident("posting"))
		assert.ErrorIs(t, err, ErrIncidentAlreadyOpen)

		open, err := repo.GetOpen(ctx, model.IncidentTypeQueueBacklog, "posting")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, created.ID, open.ID)

		// A different queue is an independent pair.
		other, err := repo.GetOpen(ctx, model.IncidentTypeQueueBacklog, "stats")
		require.NoError(t, err)
		assert.Nil(t, other)
	})
}

func TestIncidentRepo_UpdateOpen(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIncidentRepo(db)
		ctx := context.Background()

		created, err := repo.CreateOpen(ctx, backlogIncident("posting"))
		require.NoError(t, err)

		err = repo.UpdateOpen(ctx, created.ID, model.IncidentSeverityHigh, 640, "wait depth 640")
		require.NoError(t, err)

		open, err := repo.GetOpen(ctx, model.IncidentTypeQueueBacklog, "posting")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, model.IncidentSeverityHigh, open.Severity)
		assert.EqualValues(t, 640, open.AffectedJobs)
		assert.Equal(t, "wait depth 640", open.Description)
	})
}

func TestIncidentRepo_ResolveAndReopen(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIncidentRepo(db)
		ctx := context.Background()

		created, err := repo.CreateOpen(ctx, backlogIncident("posting"))
		require.NoError(t, err)

		require.NoError(t, repo.Resolve(ctx, created.ID, "collector", "backlog drained"))

		open, err := repo.GetOpen(ctx, model.IncidentTypeQueueBacklog, "posting")
		require.NoError(t, err)
		assert.Nil(t, open)

		// The resolution reason is appended to the incident narrative.
		var resolved model.Incident
		var resolvedBy sql.NullString
		err = db.QueryRowContext(ctx, `
			SELECT status, description, resolved_by FROM incidents WHERE id = $1
		`, created.ID).Scan(&resolved.Status, &resolved.Description, &resolvedBy)
		require.NoError(t, err)
		assert.Equal(t, model.IncidentStatusResolved, resolved.Status)
		assert.Equal(t, "wait depth 120\nresolved: backlog drained", resolved.Description)
		assert.Equal(t, "collector", resolvedBy.String)

		// Once resolved, the pair is free for a fresh incident.
		_, err = repo.CreateOpen(ctx, backlogIncident("posting"))
		require.NoError(t, err)

		// But resolved rows are no longer updatable through the open paths.
		err = repo.UpdateOpen(ctx, created.ID, model.IncidentSeverityHigh, 1, "stale")
		assert.ErrorIs(t, err, ErrIncidentNotFound)
		err = repo.Resolve(ctx, created.ID, "collector", "again")
		assert.ErrorIs(t, err, ErrIncidentNotFound)
	})
}

func TestIncidentRepo_UpdateOpen_Missing(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIncidentRepo(db)

		err := repo.UpdateOpen(context.Background(), uuid.NewString(), model.IncidentSeverityHigh, 1, "x")
		assert.ErrorIs(t, err, ErrIncidentNotFound)
	})
}
