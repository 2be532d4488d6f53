// db/db_test.go: unit tests for the session layer.
// Uses in-memory or t.TempDir() SQLite databases; no external services required.
//
// Run:  go test ./db/... -v -race
package db_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Skryldev/critique/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

const (
	testSchema = `
		CREATE TABLE IF NOT EXISTS authors (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS notes (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			author_id INTEGER NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
			body      TEXT NOT NULL
		)`

	insertAuthor = `INSERT INTO authors (name) VALUES (?)`
	countAuthors = `SELECT COUNT(*) FROM authors`
)

func openSession(t *testing.T, cfg db.Config) *db.Session {
	t.Helper()
	s, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSession(t *testing.T) *db.Session {
	t.Helper()
	s := openSession(t, db.Config{
		Path:        db.MemoryPath,
		ForeignKeys: true,
		Hooks: []db.Hook{
			db.NewLogHook(db.LogHookConfig{LogArgs: true}),
		},
	})
	if _, err := s.Exec(context.Background(), testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return s
}

func countRows(t *testing.T, s *db.Session) int {
	t.Helper()
	var n int
	if err := s.QueryRow(context.Background(), countAuthors).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Open / Ping
// ─────────────────────────────────────────────────────────────────────────────

func TestOpen(t *testing.T) {
	s := newTestSession(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if s.ID() == "" {
		t.Fatal("expected a session id")
	}
	if s.Path() != db.MemoryPath {
		t.Fatalf("unexpected path %q", s.Path())
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := db.Open(context.Background(), db.Config{})
	if !db.IsInvalidArgument(err) {
		t.Fatalf("expected ErrInvalidArgument for empty path, got %v", err)
	}
}

func TestOpen_UnreachableStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "critique.db")
	_, err := db.Open(context.Background(), db.Config{Path: path, ForeignKeys: true})
	if !db.IsStoreUnavailable(err) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Exec / QueryRow
// ─────────────────────────────────────────────────────────────────────────────

func TestExec_Insert(t *testing.T) {
	s := newTestSession(t)
	res, err := s.Exec(context.Background(), insertAuthor, "Scott")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	n, _ := res.RowsAffected()
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestQueryRow_NotFound(t *testing.T) {
	s := newTestSession(t)
	var name string
	err := s.QueryRow(context.Background(), `SELECT name FROM authors WHERE id = ?`, 99999).Scan(&name)
	if !db.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Close: idempotent, fail fast afterwards
// ─────────────────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	s, err := db.Open(context.Background(), db.Config{Path: db.MemoryPath})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.IsClosed() {
		t.Fatal("fresh session reports closed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !s.IsClosed() {
		t.Fatal("expected IsClosed after Close")
	}
}

func TestClosedSession_FailsFast(t *testing.T) {
	hook := &countingHook{}
	s, err := db.Open(context.Background(), db.Config{Path: db.MemoryPath, Hooks: []db.Hook{hook}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()
	ctx := context.Background()

	var n int
	checks := map[string]error{
		"exec":     func() error { _, err := s.Exec(ctx, `SELECT 1`); return err }(),
		"query":    func() error { _, err := s.Query(ctx, `SELECT 1`); return err }(),
		"queryrow": s.QueryRow(ctx, `SELECT 1`).Scan(&n),
		"prepare":  func() error { _, err := s.Prepare(ctx, `SELECT 1`); return err }(),
		"exectx":   s.ExecTx(ctx, func(*db.Tx) error { return nil }),
		"begin":    s.Begin(ctx),
		"ping":     s.Ping(ctx),
		"fk":       s.SetForeignKeys(ctx, true),
	}
	for name, err := range checks {
		if !db.IsStoreUnavailable(err) {
			t.Errorf("%s: expected ErrStoreUnavailable, got %v", name, err)
		}
	}
	if hook.before != 0 {
		t.Fatalf("no statement should reach the driver, got %d", hook.before)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Foreign keys
// ─────────────────────────────────────────────────────────────────────────────

func TestForeignKeys_Toggle(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	on, err := s.ForeignKeysEnabled(ctx)
	if err != nil || !on {
		t.Fatalf("expected enforcement on at open, got %v (%v)", on, err)
	}

	_, err = s.Exec(ctx, `INSERT INTO notes (author_id, body) VALUES (42, 'orphan')`)
	if !db.IsIntegrityViolation(err) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}

	if err := s.SetForeignKeys(ctx, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	on, _ = s.ForeignKeysEnabled(ctx)
	if on {
		t.Fatal("expected enforcement off")
	}
	if _, err := s.Exec(ctx, `INSERT INTO notes (author_id, body) VALUES (42, 'orphan')`); err != nil {
		t.Fatalf("orphan insert with enforcement off: %v", err)
	}
}

func TestForeignKeys_RefusedInsideTransaction(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	err := s.ExecTx(ctx, func(*db.Tx) error {
		return s.SetForeignKeys(ctx, false)
	})
	if !db.IsInvalidArgument(err) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestForeignKeys_OffByDefault(t *testing.T) {
	s := openSession(t, db.Config{Path: db.MemoryPath})
	on, err := s.ForeignKeysEnabled(context.Background())
	if err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if on {
		t.Fatal("engine default should be off without Config.ForeignKeys")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_Commit(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	err := s.ExecTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx, insertAuthor, "Dave")
		return err
	})
	if err != nil {
		t.Fatalf("tx commit: %v", err)
	}
	if n := countRows(t, s); n != 1 {
		t.Fatalf("expected 1 committed row, got %d", n)
	}
}

func TestExecTx_RollbackOnError(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	sentinelErr := errors.New("intentional failure")

	err := s.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, insertAuthor, "Eve"); err != nil {
			return err
		}
		// Statements on the session itself join the transaction.
		if _, err := s.Exec(ctx, insertAuthor, "Mallory"); err != nil {
			return err
		}
		return sentinelErr
	})
	if !errors.Is(err, sentinelErr) {
		t.Fatalf("expected sentinelErr, got %v", err)
	}
	if n := countRows(t, s); n != 0 {
		t.Fatalf("expected 0 rows after rollback, got %d", n)
	}
	if s.InTx() {
		t.Fatal("transaction still pending after rollback")
	}
}

func TestExecTx_RollbackOnPanic(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = s.ExecTx(ctx, func(tx *db.Tx) error {
			_, _ = tx.Exec(ctx, insertAuthor, "Panicky")
			panic("test panic")
		})
	}()

	if n := countRows(t, s); n != 0 {
		t.Fatalf("expected 0 rows after panic, got %d", n)
	}
}

func TestExecTx_NestedSavepoint(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()
	inner := errors.New("inner failure")

	err := s.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, insertAuthor, "Outer"); err != nil {
			return err
		}
		err := s.ExecTx(ctx, func(tx *db.Tx) error {
			if _, err := tx.Exec(ctx, insertAuthor, "Inner"); err != nil {
				return err
			}
			return inner
		})
		if !errors.Is(err, inner) {
			t.Errorf("expected inner error, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}

	var name string
	if err := s.QueryRow(ctx, `SELECT name FROM authors`).Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "Outer" || countRows(t, s) != 1 {
		t.Fatalf("only the outer insert should survive, got %q", name)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Begin / Commit / Rollback / commit on close
// ─────────────────────────────────────────────────────────────────────────────

func TestBegin_Rollback(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Begin(ctx); !db.IsInvalidArgument(err) {
		t.Fatalf("expected ErrInvalidArgument on nested Begin, got %v", err)
	}
	if _, err := s.Exec(ctx, insertAuthor, "Ghost"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n := countRows(t, s); n != 0 {
		t.Fatalf("expected 0 rows, got %d", n)
	}
	if err := s.Commit(); !db.IsInvalidArgument(err) {
		t.Fatalf("expected ErrInvalidArgument without Begin, got %v", err)
	}
}

func TestClose_CommitsPendingTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.db")
	ctx := context.Background()

	s, err := db.Open(ctx, db.Config{Path: path, ForeignKeys: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Exec(ctx, testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := s.Exec(ctx, insertAuthor, "Kim"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openSession(t, db.Config{Path: path})
	if n := countRows(t, s2); n != 1 {
		t.Fatalf("expected the pending write to be committed on close, got %d rows", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_Conflict(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, insertAuthor, "Alice"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := s.Exec(ctx, insertAuthor, "Alice") // should trigger UNIQUE constraint
	if !db.IsConflict(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	var dbe *db.DBError
	if !errors.As(err, &dbe) || dbe.Cause == nil {
		t.Fatalf("expected DBError with driver cause, got %#v", err)
	}
}

func TestErrorMapper_NotNull(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Exec(context.Background(), insertAuthor, nil)
	if !db.IsIntegrityViolation(err) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
}

func TestErrorMapper_Busy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	ctx := context.Background()

	writer := openSession(t, db.Config{Path: path})
	if _, err := writer.Exec(ctx, testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := writer.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := writer.Exec(ctx, insertAuthor, "Holder"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	other := openSession(t, db.Config{Path: path, BusyTimeout: time.Millisecond})
	_, err := other.Exec(ctx, insertAuthor, "Blocked")
	if !db.IsBusy(err) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := writer.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestErrorMapper_Context(t *testing.T) {
	m := db.DefaultErrorMapper()
	if !db.IsTimeout(m.Map(context.DeadlineExceeded)) {
		t.Fatal("deadline should map to ErrTimeout")
	}
	if m.Map(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	plain := errors.New("plain")
	if m.Map(plain) != plain {
		t.Fatal("unknown errors pass through unchanged")
	}
}

func TestDBError_Message(t *testing.T) {
	err := db.Errorf(db.ErrNotFound, "user %q", "Scott")
	if got := err.Error(); got != `critique/db: record not found: user "Scott"` {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrConflict) {
		t.Fatal("sentinel matching is wrong")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Hooks: verify they are called
// ─────────────────────────────────────────────────────────────────────────────

type countingHook struct {
	before int
	after  int
}

func (h *countingHook) BeforeStatement(context.Context, *db.Statement) { h.before++ }
func (h *countingHook) AfterStatement(context.Context, *db.Statement, time.Duration, error) {
	h.after++
}

type panickingHook struct{}

func (panickingHook) BeforeStatement(context.Context, *db.Statement) { panic("before") }
func (panickingHook) AfterStatement(context.Context, *db.Statement, time.Duration, error) {
	panic("after")
}

// recordingHook keeps every finished statement together with the context it
// ran under.
type recordingHook struct {
	stmts []db.Statement
	errs  []error
	ctxs  []context.Context
}

func (h *recordingHook) BeforeStatement(context.Context, *db.Statement) {}
func (h *recordingHook) AfterStatement(ctx context.Context, st *db.Statement, _ time.Duration, err error) {
	h.stmts = append(h.stmts, *st)
	h.errs = append(h.errs, err)
	h.ctxs = append(h.ctxs, ctx)
}

func (h *recordingHook) reset() { h.stmts, h.errs, h.ctxs = nil, nil, nil }

func TestHooks_CalledOnExec(t *testing.T) {
	hook := &countingHook{}
	s := openSession(t, db.Config{
		Path:  db.MemoryPath,
		Hooks: []db.Hook{nil, panickingHook{}, hook},
	})

	_, _ = s.Exec(context.Background(), `SELECT 1`)

	if hook.before != 1 || hook.after != 1 {
		t.Fatalf("hook not called: before=%d after=%d", hook.before, hook.after)
	}
}

func TestHooks_StatementDescribesSession(t *testing.T) {
	hook := &recordingHook{}
	s := openSession(t, db.Config{Path: db.MemoryPath, Hooks: []db.Hook{hook}})
	ctx := context.Background()
	if _, err := s.Exec(ctx, testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	hook.reset()

	if _, err := s.Exec(ctx, insertAuthor, "ann"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, insertAuthor, "bob"); err != nil {
			return err
		}
		// Statements issued on the session while ExecTx runs join the tx.
		_, err := s.Exec(ctx, `UPDATE authors SET name = ? WHERE name = ?`, "bea", "bob")
		return err
	})
	if err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	want := []struct {
		verb string
		inTx bool
	}{{"INSERT", false}, {"INSERT", true}, {"UPDATE", true}}
	if len(hook.stmts) != len(want) {
		t.Fatalf("got %d statements, want %d: %+v", len(hook.stmts), len(want), hook.stmts)
	}
	for i, w := range want {
		st := hook.stmts[i]
		if st.Session != s.ID() {
			t.Errorf("stmt %d: session = %q, want %q", i, st.Session, s.ID())
		}
		if st.Verb != w.verb || st.InTx != w.inTx {
			t.Errorf("stmt %d: got verb=%s tx=%v, want verb=%s tx=%v", i, st.Verb, st.InTx, w.verb, w.inTx)
		}
	}
}

func TestHooks_SessionsAreDistinguished(t *testing.T) {
	hook := &recordingHook{}
	path := filepath.Join(t.TempDir(), "two.db")
	a := openSession(t, db.Config{Path: path, Hooks: []db.Hook{hook}})
	b := openSession(t, db.Config{Path: path, Hooks: []db.Hook{hook}})
	ctx := context.Background()

	_, _ = a.Exec(ctx, `SELECT 1`)
	_, _ = b.Exec(ctx, `SELECT 1`)

	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}
	if len(hook.stmts) != 2 || hook.stmts[0].Session != a.ID() || hook.stmts[1].Session != b.ID() {
		t.Fatalf("statements not attributed to their sessions: %+v", hook.stmts)
	}
}

func TestLogHook(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := openSession(t, db.Config{
		Path: db.MemoryPath,
		Hooks: []db.Hook{db.NewLogHook(db.LogHookConfig{
			Logger:             logger,
			SlowQueryThreshold: time.Nanosecond,
		})},
	})
	ctx := context.Background()

	_, _ = s.Exec(ctx, `SELECT 1`)
	_, _ = s.Exec(ctx, `SELECT * FROM nowhere`)

	out := buf.String()
	for _, want := range []string{
		"slow statement",
		"statement failed",
		"session=" + s.ID(),
		"verb=SELECT",
		"kind=error",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q:\n%s", want, out)
		}
	}
}

func TestLogHook_ConflictIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := openSession(t, db.Config{
		Path:  db.MemoryPath,
		Hooks: []db.Hook{db.NewLogHook(db.LogHookConfig{Logger: logger})},
	})
	ctx := context.Background()
	if _, err := s.Exec(ctx, testSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	_, _ = s.Exec(ctx, insertAuthor, "ann")
	_, _ = s.Exec(ctx, insertAuthor, "ann")

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "kind=conflict") {
		t.Fatalf("expected an INFO conflict entry, got:\n%s", out)
	}
	if strings.Contains(out, "level=ERROR") {
		t.Fatalf("conflict logged as error:\n%s", out)
	}
}

func TestDefaultTimeout_ReleasedAfterStatement(t *testing.T) {
	hook := &recordingHook{}
	s := openSession(t, db.Config{
		Path:           db.MemoryPath,
		DefaultTimeout: time.Minute,
		Hooks:          []db.Hook{hook},
	})
	ctx := context.Background()

	if _, err := s.Exec(ctx, `SELECT 1`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	var n int
	if err := s.QueryRow(ctx, `SELECT 2`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("query row: n=%d err=%v", n, err)
	}

	if len(hook.ctxs) != 2 {
		t.Fatalf("got %d statements, want 2", len(hook.ctxs))
	}
	for i, c := range hook.ctxs {
		if _, ok := c.Deadline(); !ok {
			t.Errorf("stmt %d: default deadline not applied", i)
		}
		if c.Err() == nil {
			t.Errorf("stmt %d: statement context still live after the call returned", i)
		}
	}
}

func TestVerb(t *testing.T) {
	cases := map[string]string{
		"\n\t\tSELECT user_id FROM users": "SELECT",
		"insert into users values (1)":    "INSERT",
		"PRAGMA foreign_keys = ON":        "PRAGMA",
		"SAVEPOINT critique_sp_1":         "SAVEPOINT",
		"WITH x AS (SELECT 1) SELECT 1":   "OTHER",
		"   ":                             "OTHER",
	}
	for q, want := range cases {
		if got := db.Verb(q); got != want {
			t.Errorf("Verb(%q) = %s, want %s", q, got, want)
		}
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{db.Errorf(db.ErrConflict, "x"), "conflict"},
		{fmt.Errorf("repo/user: %w", db.Errorf(db.ErrNotFound, "x")), "not_found"},
		{&db.DBError{Sentinel: db.ErrBusy}, "busy"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		if got := db.Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Prepared statements / BatchExec
// ─────────────────────────────────────────────────────────────────────────────

func TestPrepare(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	stmt, err := s.Prepare(ctx, insertAuthor)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for _, name := range []string{"p1", "p2", "p3"} {
		if _, err := stmt.Exec(ctx, name); err != nil {
			t.Fatalf("exec prepared: %v", err)
		}
	}
	if n := countRows(t, s); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestBatchExec(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	names := []string{"Batch1", "Batch2", "Batch3"}
	err := db.BatchExec(s, ctx, insertAuthor, names, func(n string) []any { return []any{n} })
	if err != nil {
		t.Fatalf("batch exec: %v", err)
	}
	if n := countRows(t, s); n != 3 {
		t.Fatalf("expected 3 batch rows, got %d", n)
	}
}

func TestBatchExec_AllOrNothing(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	names := []string{"Same", "Other", "Same"}
	err := db.BatchExec(s, ctx, insertAuthor, names, func(n string) []any { return []any{n} })
	if !db.IsConflict(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if n := countRows(t, s); n != 0 {
		t.Fatalf("expected no rows after failed batch, got %d", n)
	}
}
