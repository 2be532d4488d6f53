package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/Skryldev/critique/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Nickname → surrogate key
// ─────────────────────────────────────────────────────────────────────────────

const sqlUserIDByNickname = `
	SELECT user_id FROM users WHERE nickname = ? LIMIT 1`

// userIDByNickname resolves a nickname to its row key. Surrogate user keys
// never leave this package.
func userIDByNickname(ctx context.Context, q db.Querier, nickname string) (id int64, ok bool, err error) {
	err = q.QueryRow(ctx, sqlUserIDByNickname, nickname).Scan(&id)
	if db.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// mustUserID is userIDByNickname for write paths: an unknown nickname is
// reported as db.ErrNotFound naming the role it was supplied for.
func mustUserID(ctx context.Context, q db.Querier, role, nickname string) (int64, error) {
	id, ok, err := userIDByNickname(ctx, q, nickname)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, db.Errorf(db.ErrNotFound, "%s %q", role, nickname)
	}
	return id, nil
}

// requireForeignKeys refuses deletes that rely on ON DELETE CASCADE when the
// session has enforcement off, since SQLite would then leave orphans behind.
func requireForeignKeys(ctx context.Context, s *db.Session) error {
	on, err := s.ForeignKeysEnabled(ctx)
	if err != nil {
		return err
	}
	if !on {
		return db.Errorf(db.ErrIntegrityViolation, "foreign key enforcement is off for this session")
	}
	return nil
}

// rowScanner is satisfied by *db.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Null helpers
// ─────────────────────────────────────────────────────────────────────────────

// optional maps an empty value to nil. Optional text columns hold NULL, never
// "", so an empty email or mobile reads back as absent and cannot collide
// with another user's under UNIQUE.
func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// NullString converts *string to sql.NullString for optional columns. Nil
// and empty both become NULL.
func NullString(s *string) sql.NullString {
	if s = optional(s); s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullUnix converts an optional time to a nullable unix-seconds column.
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

// Timestamps are stored as unix seconds, so sub-second precision is dropped.
func fromUnix(n int64) time.Time { return time.Unix(n, 0).UTC() }

func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t.UTC().Truncate(time.Second)
}

func exists(ctx context.Context, q db.Querier, query string, args ...any) (bool, error) {
	var found bool
	if err := q.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}
