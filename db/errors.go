package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned by write paths whose referent does not exist.
	// Read paths report absence with a nil record instead.
	ErrNotFound = errors.New("critique/db: record not found")

	// ErrConflict is returned when a uniqueness rule is violated, whether it
	// was detected by a repository pre-check or by a UNIQUE constraint.
	ErrConflict = errors.New("critique/db: conflict")

	// ErrMalformedIdentifier is returned when an encoded identifier fails
	// format validation.
	ErrMalformedIdentifier = errors.New("critique/db: malformed identifier")

	// ErrIntegrityViolation is returned when the engine itself rejects a
	// write (foreign key, NOT NULL or CHECK constraint).
	ErrIntegrityViolation = errors.New("critique/db: integrity violation")

	// ErrStoreUnavailable is returned when the session is closed or the
	// backing store cannot be opened.
	ErrStoreUnavailable = errors.New("critique/db: store unavailable")

	// ErrInvalidArgument is returned when a caller-supplied value breaks a
	// contract the core enforces (missing required field, reply carrying a
	// rating, ...).
	ErrInvalidArgument = errors.New("critique/db: invalid argument")

	// ErrBusy is returned when the database file is locked by another writer.
	ErrBusy = errors.New("critique/db: database busy")

	// ErrTimeout is returned when a statement exceeds its deadline.
	ErrTimeout = errors.New("critique/db: query timeout")
)

// ─────────────────────────────────────────────────────────────────────────────
// Error helpers: use errors.Is() for type-safe checks
// ─────────────────────────────────────────────────────────────────────────────

func IsNotFound(err error) bool             { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool             { return errors.Is(err, ErrConflict) }
func IsMalformedIdentifier(err error) bool  { return errors.Is(err, ErrMalformedIdentifier) }
func IsIntegrityViolation(err error) bool   { return errors.Is(err, ErrIntegrityViolation) }
func IsStoreUnavailable(err error) bool     { return errors.Is(err, ErrStoreUnavailable) }
func IsInvalidArgument(err error) bool      { return errors.Is(err, ErrInvalidArgument) }
func IsBusy(err error) bool                 { return errors.Is(err, ErrBusy) }
func IsTimeout(err error) bool              { return errors.Is(err, ErrTimeout) }

var kinds = []struct {
	sentinel error
	name     string
}{
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrMalformedIdentifier, "malformed_identifier"},
	{ErrIntegrityViolation, "integrity_violation"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrBusy, "busy"},
	{ErrTimeout, "timeout"},
}

// Kind names the sentinel err carries, for log attributes and metric labels.
// It returns "ok" for nil and "error" for anything outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}
	return "error"
}

// ─────────────────────────────────────────────────────────────────────────────
// DBError: rich error type preserving original driver error
// ─────────────────────────────────────────────────────────────────────────────

// DBError wraps a sentinel error with the original driver error so callers can
// either use errors.Is(err, ErrConflict) for simple checks or inspect the
// raw driver error for additional context.
type DBError struct {
	// Sentinel is one of the package-level Err* variables.
	Sentinel error
	// Cause is the original driver error. May be nil for errors raised by
	// the core itself.
	Cause error
	// Message is an optional human-readable hint.
	Message string
}

func (e *DBError) Error() string {
	switch {
	case e.Cause == nil && e.Message == "":
		return e.Sentinel.Error()
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Sentinel, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (cause: %v)", e.Sentinel, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// Errorf builds a DBError around sentinel with a formatted message and no
// driver cause.
func Errorf(sentinel error, format string, args ...any) error {
	return &DBError{Sentinel: sentinel, Message: fmt.Sprintf(format, args...)}
}

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper interface
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the package's sentinel errors.
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc is a convenience adapter from a function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper returns the SQLite mapper used by every session.
func DefaultErrorMapper() ErrorMapper {
	return ErrorMapperFunc(defaultMap)
}

func defaultMap(err error) error {
	if err == nil {
		return nil
	}

	// Already mapped: do not double-wrap
	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return &DBError{Sentinel: ErrStoreUnavailable, Cause: err}
	}

	if mapped := mapSQLiteError(err); mapped != nil {
		return mapped
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite mapping (go-sqlite3 typed error codes)
// ─────────────────────────────────────────────────────────────────────────────

func mapSQLiteError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return nil
	}

	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return &DBError{Sentinel: ErrConflict, Cause: err}
	case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
		return &DBError{Sentinel: ErrIntegrityViolation, Cause: err}
	}

	switch se.Code {
	case sqlite3.ErrConstraint:
		return &DBError{Sentinel: ErrIntegrityViolation, Cause: err}
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &DBError{Sentinel: ErrBusy, Cause: err}
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrIoErr:
		return &DBError{Sentinel: ErrStoreUnavailable, Cause: err}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ChainMapper: compose multiple mappers (first match wins)
// ─────────────────────────────────────────────────────────────────────────────

// ChainMapper returns an ErrorMapper that tries each mapper in order,
// returning the first remapped error.
func ChainMapper(mappers ...ErrorMapper) ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		if err == nil {
			return nil
		}
		for _, m := range mappers {
			if mapped := m.Map(err); mapped != err {
				return mapped
			}
		}
		return err
	})
}
