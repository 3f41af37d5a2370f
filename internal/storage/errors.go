package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable means the database could not be opened or migrated.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrOperationFailed wraps engine failures of an individual operation.
	ErrOperationFailed = errors.New("operation failed")
	// ErrMalformedImport means an import payload was rejected before any write.
	ErrMalformedImport = errors.New("malformed import")
	// ErrNotFound is returned by lookups of a missing session id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidSession is returned when a record violates the session invariants.
	ErrInvalidSession = errors.New("invalid session")
)

func opFailed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrOperationFailed, err)
}

// Validate checks the invariants a session must hold before it is stored.
func Validate(s Session) error {
	if s.DurationMs < 0 {
		return fmt.Errorf("%w: negative duration %d", ErrInvalidSession, s.DurationMs)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidSession)
	}
	if s.EndTime.IsZero() {
		return fmt.Errorf("%w: missing end time", ErrInvalidSession)
	}
	return nil
}
