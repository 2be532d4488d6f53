package repo_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/models"
	"github.com/Skryldev/critique/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test fixture
// ─────────────────────────────────────────────────────────────────────────────

// statementCounter counts statements that reach the driver.
type statementCounter struct{ n atomic.Int64 }

func (c *statementCounter) BeforeStatement(context.Context, *db.Statement) { c.n.Add(1) }
func (c *statementCounter) AfterStatement(context.Context, *db.Statement, time.Duration, error) {
}

func (c *statementCounter) reset() { c.n.Store(0) }
func (c *statementCounter) count() int64 { return c.n.Load() }

type env struct {
	store   *db.Store
	s       *db.Session
	users   repo.UserRepository
	posts   repo.PostRepository
	ratings repo.RatingRepository
	stmts   *statementCounter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	stmts := &statementCounter{}

	store, err := db.NewStore(db.Config{
		Path:        filepath.Join(t.TempDir(), "critique.db"),
		ForeignKeys: true,
		BusyTimeout: 5 * time.Second,
		Hooks:       []db.Hook{stmts},
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))

	s, err := store.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &env{
		store:   store,
		s:       s,
		users:   repo.NewUserRepo(s),
		posts:   repo.NewPostRepo(s),
		ratings: repo.NewRatingRepo(s),
		stmts:   stmts,
	}
}

func str(s string) *string { return &s }
func num(n int) *int       { return &n }
func flag(b bool) *bool    { return &b }

func (e *env) mustUser(t *testing.T, nickname string) {
	t.Helper()
	_, err := e.users.Create(context.Background(), models.CreateUserParams{
		Nickname:  nickname,
		FirstName: nickname,
	})
	require.NoError(t, err)
}

// concurrently runs fn n times, each on its own session of the env's store,
// released together, and returns each call's error.
func (e *env) concurrently(t *testing.T, n int, fn func(s *db.Session, i int) error) []error {
	t.Helper()
	ctx := context.Background()
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.store.Connect(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			defer s.Close()
			<-start
			errs[i] = fn(s, i)
		}()
	}
	close(start)
	wg.Wait()
	return errs
}
