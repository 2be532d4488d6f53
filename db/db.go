// Package db is the storage core of critique: an explicit SQLite session type,
// the schema store that owns the database file, and the error taxonomy shared
// by every repository. It is NOT an ORM: all SQL is explicit, parameterized
// and lives next to the code that runs it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// driverName is the database/sql name registered by github.com/mattn/go-sqlite3.
const driverName = "sqlite3"

// MemoryPath opens a private in-memory database. Every session on it sees its
// own empty database, so it is only useful for single-session work.
const MemoryPath = ":memory:"

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds everything needed to open sessions on one database file.
// It is passed by value; there is no package-level default.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// ForeignKeys enables PRAGMA foreign_keys on every new session. SQLite
	// ships with enforcement off, which silently permits orphaned rows.
	ForeignKeys bool

	// BusyTimeout is how long a statement waits on a locked database file.
	// Zero keeps the driver default.
	BusyTimeout time.Duration

	// Default statement timeout applied when no deadline is set on the context.
	// Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks executed around every statement (logging, metrics).
	// Nil entries are silently skipped.
	Hooks []Hook

	// Logger receives session lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// ─────────────────────────────────────────────────────────────────────────────
// Session: one exclusive handle on the store
// ─────────────────────────────────────────────────────────────────────────────

// Session is a single live connection to the backing store, scoped to one
// unit of work. It moves Open → Closed exactly once and is never reopened.
//
// A Session is not safe for concurrent use; callers serialize access to it.
// Every method fails with ErrStoreUnavailable once Close has been called.
type Session struct {
	id     string
	sqldb  *sql.DB
	conn   *sql.Conn
	tx     *sql.Tx
	sp     int // savepoint counter for nested ExecTx
	cfg    Config
	hooks  hookChain
	errMap ErrorMapper
	logger *slog.Logger
	closed bool
}

// Open opens a session on cfg.Path, pins its single connection and applies
// the session pragmas. The caller owns the session and must Close it.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Path == "" {
		return nil, Errorf(ErrInvalidArgument, "Path must not be empty")
	}

	sqldb, err := sql.Open(driverName, dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("critique/db: open: %w", err)
	}

	// One session, one handle: the pool never grows past the pinned conn.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, err := sqldb.Conn(connCtx)
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("critique/db: connect: %w", DefaultErrorMapper().Map(err))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	s := &Session{
		id:     id,
		sqldb:  sqldb,
		conn:   conn,
		cfg:    cfg,
		hooks:  newHookChain(id, cfg.Hooks),
		errMap: DefaultErrorMapper(),
		logger: logger.With(slog.String("session", id)),
	}

	if err := s.applyPragmas(ctx); err != nil {
		_ = conn.Close()
		_ = sqldb.Close()
		return nil, err
	}

	s.logger.DebugContext(ctx, "critique/db: session opened",
		"path", cfg.Path, "foreign_keys", cfg.ForeignKeys)
	return s, nil
}

// dsn turns a store path into a go-sqlite3 DSN. Transactions on it begin
// IMMEDIATE: the write lock is taken at BEGIN, where busy_timeout applies,
// rather than on the first write of a transaction that has already read.
func dsn(path string) string {
	if strings.Contains(path, "_txlock=") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

func (s *Session) applyPragmas(ctx context.Context) error {
	if s.cfg.BusyTimeout > 0 {
		q := fmt.Sprintf("PRAGMA busy_timeout = %d", s.cfg.BusyTimeout.Milliseconds())
		if _, err := s.Exec(ctx, q); err != nil {
			return fmt.Errorf("critique/db: busy_timeout: %w", err)
		}
	}
	if s.cfg.ForeignKeys {
		if err := s.SetForeignKeys(ctx, true); err != nil {
			return fmt.Errorf("critique/db: foreign_keys: %w", err)
		}
	}
	return nil
}

// ID returns the session's unique id. Lifecycle log entries and every
// Statement handed to hooks carry it.
func (s *Session) ID() string { return s.id }

// Path returns the database file this session is bound to.
func (s *Session) Path() string { return s.cfg.Path }

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool { return s.closed }

// SetErrorMapper replaces the default error mapper with a custom one.
func (s *Session) SetErrorMapper(m ErrorMapper) { s.errMap = m }

// Close commits a pending transaction and releases the handle.
// Calling Close again is a no-op that returns nil.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("critique/db: commit on close: %w", s.mapErr(err)))
		}
		s.tx = nil
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, s.mapErr(err))
	}
	if err := s.sqldb.Close(); err != nil {
		errs = append(errs, s.mapErr(err))
	}

	s.logger.Debug("critique/db: session closed")
	return errors.Join(errs...)
}

// Ping verifies that the database is reachable.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	ctx, cancel := s.applyDefaultTimeout(ctx)
	defer cancel()
	return s.mapErr(s.conn.PingContext(ctx))
}

// ─────────────────────────────────────────────────────────────────────────────
// Foreign-key enforcement
// ─────────────────────────────────────────────────────────────────────────────

// SetForeignKeys turns foreign-key enforcement on or off for this session
// only. SQLite ignores the pragma inside a transaction, so the call is refused
// while one is pending.
func (s *Session) SetForeignKeys(ctx context.Context, on bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx != nil {
		return Errorf(ErrInvalidArgument, "foreign_keys cannot change inside a transaction")
	}
	stmt := "PRAGMA foreign_keys = OFF"
	if on {
		stmt = "PRAGMA foreign_keys = ON"
	}
	_, err := s.Exec(ctx, stmt)
	return err
}

// ForeignKeysEnabled reports whether enforcement is active on this session.
func (s *Session) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	var v int
	if err := s.QueryRow(ctx, "PRAGMA foreign_keys").Scan(&v); err != nil {
		return false, err
	}
	return v == 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Query execution helpers
// ─────────────────────────────────────────────────────────────────────────────

// execer is satisfied by both *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// target routes statements through the pending transaction when there is one.
func (s *Session) target() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Exec executes a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, cancel := s.applyDefaultTimeout(ctx)
	defer cancel()
	var res sql.Result
	err := s.hooks.observe(ctx, query, args, s.tx != nil, func() (err error) {
		res, err = s.target().ExecContext(ctx, query, args...)
		return s.mapErr(err)
	})
	return res, err
}

// Query executes a query that returns rows.
// The caller MUST close the returned *sql.Rows.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	// The rows outlive this call, so a default deadline is released by its
	// own timer rather than by cancel, except on failure.
	ctx, cancel := s.applyDefaultTimeout(ctx)
	var rows *sql.Rows
	err := s.hooks.observe(ctx, query, args, s.tx != nil, func() (err error) {
		rows, err = s.target().QueryContext(ctx, query, args...)
		return s.mapErr(err)
	})
	if err != nil {
		cancel()
	}
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
// ErrNotFound is returned by Scan when no row matches.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if err := s.check(); err != nil {
		return &Row{err: err, errMap: s.errMap}
	}
	ctx, cancel := s.applyDefaultTimeout(ctx)
	var raw *sql.Row
	_ = s.hooks.observe(ctx, query, args, s.tx != nil, func() error {
		raw = s.target().QueryRowContext(ctx, query, args...)
		return nil // known only at Scan
	})
	return &Row{raw: raw, errMap: s.errMap, cancel: cancel}
}

// Prepare creates a prepared statement for repeated use.
// The caller is responsible for calling stmt.Close().
func (s *Session) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, cancel := s.applyDefaultTimeout(ctx)
	defer cancel()
	st, err := s.target().PrepareContext(ctx, query)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return &Stmt{stmt: st, query: query, inTx: s.tx != nil, hooks: s.hooks, errMap: s.errMap}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch helpers
// ─────────────────────────────────────────────────────────────────────────────

// BatchExec runs query once per item inside a single transaction, binding the
// arguments produced by argsFn. All rows succeed or none do.
//
//	err := db.BatchExec(s, ctx, "INSERT INTO ratings (ratings_id, timestamp, sender_id, receiver_id, rating) VALUES (?, ?, ?, ?, ?)",
//	    rows, func(r RatingRow) []any { return []any{r.ID, r.Timestamp, r.SenderID, r.ReceiverID, r.Value} })
func BatchExec[T any](
	s *Session,
	ctx context.Context,
	query string,
	items []T,
	argsFn func(T) []any,
) error {
	if len(items) == 0 {
		return nil
	}
	return s.ExecTx(ctx, func(tx *Tx) error {
		stmt, err := tx.Prepare(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.Exec(ctx, argsFn(item)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Session) check() error {
	if s.closed {
		return &DBError{Sentinel: ErrStoreUnavailable, Message: "session is closed"}
	}
	return nil
}

// applyDefaultTimeout bounds ctx by DefaultTimeout unless it already has a
// deadline. The returned cancel is never nil.
func (s *Session) applyDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DefaultTimeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.DefaultTimeout)
}

func (s *Session) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return s.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Row: wraps *sql.Row to translate errors uniformly
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sql.Row
	err    error
	errMap ErrorMapper
	cancel context.CancelFunc
}

// Scan copies columns from the matched row into dest values.
// ErrNotFound is returned when no row was found.
func (r *Row) Scan(dest ...any) error {
	if r.cancel != nil {
		defer r.cancel()
	}
	if r.err != nil {
		return r.err
	}
	return r.errMap.Map(r.raw.Scan(dest...))
}

// ─────────────────────────────────────────────────────────────────────────────
// Stmt: wraps *sql.Stmt
// ─────────────────────────────────────────────────────────────────────────────

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt   *sql.Stmt
	query  string
	inTx   bool
	hooks  hookChain
	errMap ErrorMapper
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.hooks.observe(ctx, s.query, args, s.inTx, func() (err error) {
		res, err = s.stmt.ExecContext(ctx, args...)
		if err != nil {
			return s.errMap.Map(err)
		}
		return nil
	})
	return res, err
}

// QueryRow executes the prepared statement expecting one row.
func (s *Stmt) QueryRow(ctx context.Context, args ...any) *Row {
	var raw *sql.Row
	_ = s.hooks.observe(ctx, s.query, args, s.inTx, func() error {
		raw = s.stmt.QueryRowContext(ctx, args...)
		return nil
	})
	return &Row{raw: raw, errMap: s.errMap}
}

// Close releases the prepared statement resources.
func (s *Stmt) Close() error { return s.stmt.Close() }
