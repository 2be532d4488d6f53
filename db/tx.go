package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Tx: transaction wrapper
// ─────────────────────────────────────────────────────────────────────────────

// Tx is a thin wrapper around *sql.Tx that mirrors the Session API surface so
// that repository code can accept either via the Querier interface.
type Tx struct {
	sqltx  *sql.Tx
	hooks  hookChain
	errMap ErrorMapper
}

// Exec executes a statement that does not return rows.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := t.hooks.observe(ctx, query, args, true, func() (err error) {
		res, err = t.sqltx.ExecContext(ctx, query, args...)
		return t.mapErr(err)
	})
	return res, err
}

// Query executes a query returning rows. The caller MUST close *sql.Rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := t.hooks.observe(ctx, query, args, true, func() (err error) {
		rows, err = t.sqltx.QueryContext(ctx, query, args...)
		return t.mapErr(err)
	})
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	var raw *sql.Row
	_ = t.hooks.observe(ctx, query, args, true, func() error {
		raw = t.sqltx.QueryRowContext(ctx, query, args...)
		return nil
	})
	return &Row{raw: raw, errMap: t.errMap}
}

// Prepare creates a prepared statement within the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	s, err := t.sqltx.PrepareContext(ctx, query)
	if err != nil {
		return nil, t.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, inTx: true, hooks: t.hooks, errMap: t.errMap}, nil
}

func (t *Tx) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return t.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx: atomic unit of work on a Session
// ─────────────────────────────────────────────────────────────────────────────

// ExecTx runs fn as one atomic unit: it commits when fn returns nil and rolls
// back on error or panic. While fn runs, statements issued through the Session
// itself also go through the transaction, so repository methods compose.
//
// When a transaction is already pending (Begin, or an enclosing ExecTx), fn
// runs inside a SAVEPOINT instead: a failure undoes only fn's writes and the
// enclosing transaction stays open for its owner to finish.
//
//	err := s.ExecTx(ctx, func(tx *db.Tx) error {
//	    res, err := tx.Exec(ctx, "INSERT INTO users (nickname, regDate) VALUES (?, ?)", nick, now)
//	    if err != nil {
//	        return err
//	    }
//	    id, _ := res.LastInsertId()
//	    _, err = tx.Exec(ctx, "INSERT INTO users_profile (user_id, firstname) VALUES (?, ?)", id, first)
//	    return err
//	})
func (s *Session) ExecTx(ctx context.Context, fn func(*Tx) error) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx != nil {
		return s.execSavepoint(ctx, fn)
	}

	ctx, cancel := s.applyDefaultTimeout(ctx)
	defer cancel()
	// BEGIN IMMEDIATE (see dsn): a concurrent writer waits here on
	// busy_timeout instead of deadlocking on a later lock upgrade.
	sqltx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return s.mapErr(err)
	}
	s.tx = sqltx

	// Ensure rollback on panic or error.
	defer func() {
		s.tx = nil
		if p := recover(); p != nil {
			_ = sqltx.Rollback()
			panic(p) // re-panic after rollback
		}
		if err != nil {
			if rbErr := sqltx.Rollback(); rbErr != nil {
				// Wrap both errors so callers see the full picture.
				err = fmt.Errorf("critique/db: rollback failed (%v) after original error: %w", rbErr, err)
			}
		}
	}()

	err = fn(s.wrapTx(sqltx))
	if err != nil {
		return s.mapErr(err) // rollback handled by defer
	}

	if err = sqltx.Commit(); err != nil {
		return s.mapErr(err)
	}
	return nil
}

func (s *Session) execSavepoint(ctx context.Context, fn func(*Tx) error) (err error) {
	s.sp++
	name := fmt.Sprintf("critique_sp_%d", s.sp)
	tx := s.wrapTx(s.tx)

	if _, err := tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = s.tx.ExecContext(ctx, "ROLLBACK TO "+name)
			_, _ = s.tx.ExecContext(ctx, "RELEASE "+name)
			panic(p)
		}
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO "+name); rbErr != nil {
				err = fmt.Errorf("critique/db: rollback to savepoint failed (%v) after original error: %w", rbErr, err)
				return
			}
			_, _ = tx.Exec(ctx, "RELEASE "+name)
		}
	}()

	if err = fn(tx); err != nil {
		return s.mapErr(err)
	}
	_, err = tx.Exec(ctx, "RELEASE "+name)
	return err
}

func (s *Session) wrapTx(sqltx *sql.Tx) *Tx {
	return &Tx{sqltx: sqltx, hooks: s.hooks, errMap: s.errMap}
}

// ─────────────────────────────────────────────────────────────────────────────
// Explicit unit of work
// ─────────────────────────────────────────────────────────────────────────────

// Begin opens a transaction that spans every following statement on the
// session until Commit, Rollback or Close (which commits).
func (s *Session) Begin(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx != nil {
		return Errorf(ErrInvalidArgument, "transaction already pending")
	}
	sqltx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return s.mapErr(err)
	}
	s.tx = sqltx
	return nil
}

// Commit commits the transaction opened by Begin.
func (s *Session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx == nil {
		return Errorf(ErrInvalidArgument, "no pending transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	return s.mapErr(err)
}

// Rollback discards the transaction opened by Begin.
func (s *Session) Rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx == nil {
		return Errorf(ErrInvalidArgument, "no pending transaction")
	}
	err := s.tx.Rollback()
	s.tx = nil
	return s.mapErr(err)
}

// InTx reports whether a transaction is pending on the session.
func (s *Session) InTx() bool { return s.tx != nil }

// ─────────────────────────────────────────────────────────────────────────────
// Querier: the shared interface accepted by repository helpers
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the minimal interface shared by both *Session and *Tx.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Prepare(ctx context.Context, query string) (*Stmt, error)
}

// Verify at compile-time that both *Session and *Tx satisfy Querier.
var (
	_ Querier = (*Session)(nil)
	_ Querier = (*Tx)(nil)
)
