package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateReference is returned when a ledger insert collides with
	// an existing reference. Callers treat it as "already applied".
	ErrDuplicateReference = errors.New("duplicate reference")
	// ErrVersionConflict is returned when an optimistic-locked update
	// targeted a stale version or a conditional status claim lost the race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidStateTransition is returned for status changes the state
	// machine forbids. It indicates a programming or integrity error.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAlreadyExists is returned on a primary-key conflict, e.g. a user
	// joining the same game twice.
	ErrAlreadyExists = errors.New("already exists")
)

// isUniqueViolation reports whether err is a Postgres 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
