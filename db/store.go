package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns one database file: it creates, clears and destroys the schema,
// bulk-loads external scripts and fixture datasets, and hands out Sessions.
type Store struct {
	cfg    Config
	logger *slog.Logger
}

// NewStore returns a Store for cfg. It does not touch the file system.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, Errorf(ErrInvalidArgument, "Path must not be empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, logger: logger}, nil
}

// Config returns the configuration sessions are opened with.
func (s *Store) Config() Config { return s.cfg }

// Connect opens a new Session on the store's database file.
func (s *Store) Connect(ctx context.Context) (*Session, error) {
	return Open(ctx, s.cfg)
}

// Migrations returns the embedded, versioned schema migrations in
// golang-migrate naming (NNNNNN_name.up.sql / .down.sql).
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return sub
}

// CreateSchema creates the four critique tables. Every statement uses
// IF NOT EXISTS, so running it on an existing database changes nothing.
func (s *Store) CreateSchema(ctx context.Context) error {
	ups, err := fs.Glob(Migrations(), "*.up.sql")
	if err != nil {
		return fmt.Errorf("critique/db: list migrations: %w", err)
	}
	return s.withSession(ctx, func(sess *Session) error {
		for _, name := range ups {
			script, err := fs.ReadFile(Migrations(), name)
			if err != nil {
				return fmt.Errorf("critique/db: read %s: %w", name, err)
			}
			if _, err := sess.Exec(ctx, string(script)); err != nil {
				return fmt.Errorf("critique/db: apply %s: %w", name, err)
			}
		}
		s.logger.InfoContext(ctx, "critique/db: schema ready", "path", s.cfg.Path)
		return nil
	})
}

// ClearAll removes every row and keeps the schema. Only users are deleted;
// foreign-key cascades empty every dependent table, so enforcement is forced
// on for this session whatever the store config says.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.withSession(ctx, func(sess *Session) error {
		if err := sess.SetForeignKeys(ctx, true); err != nil {
			return err
		}
		if _, err := sess.Exec(ctx, "DELETE FROM users"); err != nil {
			return fmt.Errorf("critique/db: clear: %w", err)
		}
		return nil
	})
}

// Destroy deletes the database file and its journal companions. A missing
// file is not an error. Open sessions must be closed first.
func (s *Store) Destroy() error {
	if s.cfg.Path == MemoryPath {
		return nil
	}
	var errs []error
	for _, p := range []string{s.cfg.Path, s.cfg.Path + "-journal", s.cfg.Path + "-wal", s.cfg.Path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("critique/db: destroy: %w", err)
	}
	s.logger.Info("critique/db: database removed", "path", s.cfg.Path)
	return nil
}

// ExecScript runs an external SQL script (a schema definition or a data dump)
// as one ordered batch of statements. The script is trusted fixture input: it
// bypasses repository validation and may contain its own BEGIN/COMMIT.
// The first failing statement aborts the batch and its error is returned.
func (s *Store) ExecScript(ctx context.Context, r io.Reader) error {
	script, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("critique/db: read script: %w", err)
	}
	return s.withSession(ctx, func(sess *Session) error {
		if _, err := sess.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("critique/db: exec script: %w", err)
		}
		return nil
	})
}

// LoadScripts runs a schema script and then a data script against the store.
// data may be nil to create the schema only.
func (s *Store) LoadScripts(ctx context.Context, schema, data io.Reader) error {
	if err := s.ExecScript(ctx, schema); err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	return s.ExecScript(ctx, data)
}

// withSession opens a session for one store-level operation and closes it,
// reporting the close error only when fn succeeded.
func (s *Store) withSession(ctx context.Context, fn func(*Session) error) (err error) {
	sess, err := s.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(sess)
}
