package model

import (
	"errors"
	"time"
)

// SessionStatus represents the lifecycle status of a remote session.
type SessionStatus string

const (
	// SessionStatusPending indicates a session record created but never logged in.
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusActive indicates the session is authenticated against the cafe.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusExpired indicates the session failed a verification probe.
	SessionStatusExpired SessionStatus = "expired"
	// SessionStatusError indicates login failed in a way that needs operator attention.
	SessionStatusError SessionStatus = "error"
)

// Valid returns true if the SessionStatus is valid.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusPending || s == SessionStatusActive ||
		s == SessionStatusExpired || s == SessionStatusError
}

// RemoteSession is the persisted authentication state of one account against
// the cafe. Invariant: ACTIVE implies LastVerifiedAt is set and ErrorMessage is nil.
type RemoteSession struct {
	ID             string        `json:"id"                         db:"id"`
	AccountID      string        `json:"account_id"                 db:"account_id"`
	UserID         string        `json:"user_id"                    db:"user_id"`
	ProfileID      string        `json:"profile_id"                 db:"profile_id"`
	Status         SessionStatus `json:"status"                     db:"status"`
	Nickname       *string       `json:"nickname,omitempty"         db:"nickname"`
	LastVerifiedAt *time.Time    `json:"last_verified_at,omitempty" db:"last_verified_at"`
	ErrorMessage   *string       `json:"error_message,omitempty"    db:"error_message"`
	CreatedAt      time.Time     `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"                 db:"updated_at"`
}

// AccountStatus represents the login health of a remote account.
type AccountStatus string

const (
	// AccountStatusActive marks an account whose last login succeeded.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusLoginFailed marks an account whose last login failed terminally.
	AccountStatusLoginFailed AccountStatus = "login_failed"
)

// RemoteAccount holds the stored credentials for one cafe account.
// Secret is the encrypted password; plaintext only exists transiently in
// handler memory after decryption.
type RemoteAccount struct {
	ID              string        `json:"id"                         db:"id"`
	UserID          string        `json:"user_id"                    db:"user_id"`
	LoginID         string        `json:"login_id"                   db:"login_id"`
	EncryptedSecret string        `json:"-"                          db:"encrypted_secret"`
	Status          AccountStatus `json:"status"                     db:"status"`
	LastLoginAt     *time.Time    `json:"last_login_at,omitempty"    db:"last_login_at"`
	LastLoginStatus *string       `json:"last_login_status,omitempty" db:"last_login_status"`
	LastLoginError  *string       `json:"last_login_error,omitempty" db:"last_login_error"`
	CreatedAt       time.Time     `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"                 db:"updated_at"`
}

// Credentials is a decrypted login pair. Never persisted.
type Credentials struct {
	LoginID  string
	Password string
}

// Automation flow sentinels shared between the automation layer and handlers.
var (
	// ErrLoginChallenge signals the login flow hit a captcha / second factor /
	// explicit manual step and a bounded operator wait should begin.
	ErrLoginChallenge = errors.New("login requires human verification")
	// ErrNotAuthenticated signals a probe found the session logged out.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrBadCredentials signals the cafe rejected the stored id/password pair.
	ErrBadCredentials = errors.New("login rejected credentials")
)
