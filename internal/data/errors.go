package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotTransitionable is returned when a status transition does not
	// match the job's current state (e.g. completing a job that is not processing).
	ErrJobNotTransitionable = errors.New("job is not in a transitionable state")
	// ErrRunNotFound is returned when a schedule run is not found.
	ErrRunNotFound = errors.New("schedule run not found")
	// ErrSessionNotFound is returned when a remote session is not found.
	ErrSessionNotFound = errors.New("remote session not found")
	// ErrNoActiveSession is returned when no ACTIVE session matches the scope.
	ErrNoActiveSession = errors.New("no active session available")
	// ErrAccountNotFound is returned when a remote account is not found.
	ErrAccountNotFound = errors.New("remote account not found")
	// ErrIncidentAlreadyOpen is returned when creating an open incident for a
	// (type, queue) pair that already has one. Expected under concurrent
	// collector runs; callers swallow it.
	ErrIncidentAlreadyOpen = errors.New("an open incident already exists for this type and queue")
	// ErrIncidentNotFound is returned when an incident is not found.
	ErrIncidentNotFound = errors.New("incident not found")
)

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
