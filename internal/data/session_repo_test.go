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

func insertAccount(t *testing.T, db *sql.DB, userID string) string {
	t.Helper()
	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO remote_accounts(user_id, login_id, encrypted_secret)
		VALUES ($1, 'login-1', 'sealed')
		RETURNING id
	`, userID).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertSession(t *testing.T, db *sql.DB, accountID, userID, status string) string {
	t.Helper()
	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO remote_sessions(account_id, user_id, profile_id, status)
		VALUES ($1, $2, 'profile-1', $3)
		RETURNING id
	`, accountID, userID, status).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestSessionRepo_FindActive(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()
		accountID := insertAccount(t, db, "user-1")

		_, err := repo.FindActive(ctx, "user-1", "")
		assert.ErrorIs(t, err, ErrNoActiveSession)

		sessionID := insertSession(t, db, accountID, "user-1", "active")
		insertSession(t, db, accountID, "user-1", "expired")

		found, err := repo.FindActive(ctx, "user-1", "")
		require.NoError(t, err)
		assert.Equal(t, sessionID, found.ID)

		// Account-scoped lookup only matches the owning account.
		found, err = repo.FindActive(ctx, "user-1", accountID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, found.ID)

		otherAccount := insertAccount(t, db, "user-1")
		_, err = repo.FindActive(ctx, "user-1", otherAccount)
		assert.ErrorIs(t, err, ErrNoActiveSession)
	})
}

func TestSessionRepo_MarkActive(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()
		accountID := insertAccount(t, db, "user-1")
		sessionID := insertSession(t, db, accountID, "user-1", "pending")

		nickname := "poster"
		verifiedAt := testutil.TestTime()
		require.NoError(t, repo.MarkActive(ctx, sessionID, verifiedAt, &nickname))

		sess, err := repo.GetByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, sess.Status)
		require.NotNil(t, sess.Nickname)
		assert.Equal(t, "poster", *sess.Nickname)
		require.NotNil(t, sess.LastVerifiedAt)
		assert.Equal(t, verifiedAt.Unix(), sess.LastVerifiedAt.Unix())

		// A nil nickname on re-verification keeps the stored one.
		require.NoError(t, repo.MarkActive(ctx, sessionID, verifiedAt, nil))
		sess, err = repo.GetByID(ctx, sessionID)
		require.NoError(t, err)
		require.NotNil(t, sess.Nickname)
		assert.Equal(t, "poster", *sess.Nickname)
	})
}

func TestSessionRepo_MarkExpiredAndError(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)
		ctx := context.Background()
		accountID := insertAccount(t, db, "user-1")
		sessionID := insertSession(t, db, accountID, "user-1", "active")

		require.NoError(t, repo.MarkExpired(ctx, sessionID, "relogin failed"))
		sess, err := repo.GetByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusExpired, sess.Status)
		require.NotNil(t, sess.ErrorMessage)
		assert.Equal(t, "relogin failed", *sess.ErrorMessage)

		require.NoError(t, repo.MarkError(ctx, sessionID, "browser crashed"))
		sess, err = repo.GetByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusError, sess.Status)

		// Reactivation clears the failure message.
		require.NoError(t, repo.MarkActive(ctx, sessionID, testutil.TestTime(), nil))
		sess, err = repo.GetByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, sess.Status)
		assert.Nil(t, sess.ErrorMessage)
	})
}

func TestSessionRepo_GetByID_NotFound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewSessionRepo(db)

		_, err := repo.GetByID(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}
