package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// AccountRepo provides database operations for remote accounts.
type AccountRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAccountRepo creates a new AccountRepo with the real time provider.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewAccountRepoWithTimeProvider creates an AccountRepo with a custom time provider.
func NewAccountRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AccountRepo {
	return &AccountRepo{DB: db, timeProvider: tp}
}

const accountColumns = `
  id,
  user_id,
  login_id,
  encrypted_secret,
  status,
  last_login_at,
  last_login_status,
  last_login_error,
  created_at,
  updated_at
`

// GetByID retrieves a remote account by its ID.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*model.RemoteAccount, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM remote_accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get remote account: %w", err)
	}
	return acc, nil
}

// RecordLoginResult updates the account's login bookkeeping after an attempt.
// A failed attempt marks the account login_failed; a successful one marks it
// active and clears the stored error.
func (r *AccountRepo) RecordLoginResult(ctx context.Context, id string, success bool, loginErr string) error {
	now := r.timeProvider.Now().UTC()

	status := model.AccountStatusLoginFailed
	loginStatus := "failed"
	var errMsg *string
	if success {
		status = model.AccountStatusActive
		loginStatus = "success"
	} else if loginErr != "" {
		errMsg = &loginErr
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE remote_accounts
		SET status = $2,
		    last_login_at = $3,
		    last_login_status = $4,
		    last_login_error = $5,
		    updated_at = $3
		WHERE id = $1
	`, id, status, now, loginStatus, errMsg)
	if err != nil {
		return fmt.Errorf("record login result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record login result rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(scanner jobRowScanner) (*model.RemoteAccount, error) {
	acc := &model.RemoteAccount{}
	var (
		lastLoginStatus, lastLoginError sql.NullString
		lastLoginAt                     sql.NullTime
	)
	if err := scanner.Scan(
		&acc.ID,
		&acc.UserID,
		&acc.LoginID,
		&acc.EncryptedSecret,
		&acc.Status,
		&lastLoginAt,
		&lastLoginStatus,
		&lastLoginError,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	acc.LastLoginAt = cloneNullableTime(lastLoginAt)
	acc.LastLoginStatus = cloneNullableString(lastLoginStatus)
	acc.LastLoginError = cloneNullableString(lastLoginError)
	return acc, nil
}
