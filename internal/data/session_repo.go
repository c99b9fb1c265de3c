package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// SessionRepo provides database operations for remote sessions.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a new SessionRepo with the real time provider.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSessionRepoWithTimeProvider creates a SessionRepo with a custom time provider.
func NewSessionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

const sessionColumns = `
  id,
  account_id,
  user_id,
  profile_id,
  status,
  nickname,
  last_verified_at,
  error_message,
  created_at,
  updated_at
`

// GetByID retrieves a remote session by its ID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.RemoteSession, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM remote_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get remote session: %w", err)
	}
	return sess, nil
}

// FindActive resolves an ACTIVE session. When accountID is non-empty the
// lookup is account-scoped; otherwise any active session owned by userID
// qualifies, most recently verified first.
func (r *SessionRepo) FindActive(ctx context.Context, userID, accountID string) (*model.RemoteSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM remote_sessions
		WHERE status = 'active' AND user_id = $1
	`
	args := []any{userID}
	if accountID != "" {
		query += ` AND account_id = $2`
		args = append(args, accountID)
	}
	query += ` ORDER BY last_verified_at DESC NULLS LAST LIMIT 1`

	row := r.DB.QueryRowContext(ctx, query, args...)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return sess, nil
}

// MarkActive transitions a session to ACTIVE, setting lastVerifiedAt and
// clearing any error message. Nickname is updated only when non-nil.
func (r *SessionRepo) MarkActive(ctx context.Context, id string, verifiedAt time.Time, nickname *string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE remote_sessions
		SET status = 'active',
		    last_verified_at = $2,
		    nickname = COALESCE($3, nickname),
		    error_message = NULL,
		    updated_at = $4
		WHERE id = $1
	`, id, verifiedAt.UTC(), nickname, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark session active: %w", err)
	}
	return requireSessionUpdated(res)
}

// MarkExpired transitions a session to EXPIRED with the failure reason.
func (r *SessionRepo) MarkExpired(ctx context.Context, id string, reason string) error {
	return r.markFailed(ctx, id, model.SessionStatusExpired, reason)
}

// MarkError transitions a session to ERROR with the failure reason.
func (r *SessionRepo) MarkError(ctx context.Context, id string, reason string) error {
	return r.markFailed(ctx, id, model.SessionStatusError, reason)
}

func (r *SessionRepo) markFailed(ctx context.Context, id string, status model.SessionStatus, reason string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE remote_sessions
		SET status = $2,
		    error_message = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, status, reason, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark session %s: %w", status, err)
	}
	return requireSessionUpdated(res)
}

func requireSessionUpdated(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session update rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSession(scanner jobRowScanner) (*model.RemoteSession, error) {
	sess := &model.RemoteSession{}
	var (
		nickname, errorMsg sql.NullString
		lastVerifiedAt     sql.NullTime
	)
	if err := scanner.Scan(
		&sess.ID,
		&sess.AccountID,
		&sess.UserID,
		&sess.ProfileID,
		&sess.Status,
		&nickname,
		&lastVerifiedAt,
		&errorMsg,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sess.Nickname = cloneNullableString(nickname)
	sess.ErrorMessage = cloneNullableString(errorMsg)
	sess.LastVerifiedAt = cloneNullableTime(lastVerifiedAt)
	return sess, nil
}
