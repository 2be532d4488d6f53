package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// UserRepository interface: for mocking in tests
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository defines the contract for user persistence operations.
// Users are addressed by nickname only.
type UserRepository interface {
	Create(ctx context.Context, params models.CreateUserParams) (string, error)
	Get(ctx context.Context, nickname string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, nickname string, params models.UpdateUserParams) (*models.User, error)
	Delete(ctx context.Context, nickname string) (bool, error)
	Exists(ctx context.Context, nickname string) (bool, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByMobile(ctx context.Context, mobile string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// userRepo is the production implementation backed by a db.Session.
type userRepo struct {
	s *db.Session
}

// NewUserRepo returns a UserRepository that runs on s. The repository never
// opens or closes sessions itself.
func NewUserRepo(s *db.Session) UserRepository {
	return &userRepo{s: s}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants: all SQL is explicit, version-controlled, and reviewable
// ─────────────────────────────────────────────────────────────────────────────

const (
	sqlInsertUser = `
		INSERT INTO users (nickname, regDate, lastLogin)
		VALUES (?, ?, ?)`

	sqlInsertProfile = `
		INSERT INTO users_profile
		       (user_id, firstname, lastname, email, mobile, gender, avatar, birthdate, bio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectUser = `
		SELECT u.user_id, u.nickname, u.regDate, u.lastLogin,
		       p.firstname, p.lastname, p.email, p.mobile, p.gender,
		       p.avatar, p.birthdate, p.bio
		FROM   users u
		LEFT   JOIN users_profile p ON p.user_id = u.user_id`

	sqlGetUser = sqlSelectUser + `
		WHERE  u.nickname = ?
		LIMIT  1`

	sqlListUsers = sqlSelectUser + `
		ORDER  BY u.user_id`

	// user_id <> ? lets the same statement serve create (-1) and update
	// (the user's own key).
	sqlUserConflicts = `
		SELECT EXISTS (SELECT 1 FROM users         WHERE nickname = ? AND user_id <> ?),
		       EXISTS (SELECT 1 FROM users_profile WHERE email    = ? AND user_id <> ?),
		       EXISTS (SELECT 1 FROM users_profile WHERE mobile   = ? AND user_id <> ?)`

	sqlUpdateUser = `
		UPDATE users SET lastLogin = ? WHERE user_id = ?`

	sqlUpsertProfile = `
		INSERT INTO users_profile
		       (user_id, firstname, lastname, email, mobile, gender, avatar, birthdate, bio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
		       firstname = excluded.firstname,
		       lastname  = excluded.lastname,
		       email     = excluded.email,
		       mobile    = excluded.mobile,
		       gender    = excluded.gender,
		       avatar    = excluded.avatar,
		       birthdate = excluded.birthdate,
		       bio       = excluded.bio`

	sqlDeleteUser = `
		DELETE FROM users WHERE nickname = ?`

	sqlUserExists = `
		SELECT EXISTS (SELECT 1 FROM users WHERE nickname = ?)`

	sqlEmailExists = `
		SELECT EXISTS (SELECT 1 FROM users_profile WHERE email = ?)`

	sqlMobileExists = `
		SELECT EXISTS (SELECT 1 FROM users_profile WHERE mobile = ?)`

	sqlCountUsers = `
		SELECT COUNT(*) FROM users`
)

const noUser int64 = -1

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create registers a user and its profile in one transaction and returns the
// nickname. It fails with db.ErrConflict when the nickname, email or mobile is
// already taken, and with db.ErrInvalidArgument when nickname or first name is
// missing.
func (r *userRepo) Create(ctx context.Context, p models.CreateUserParams) (string, error) {
	if p.Nickname == "" {
		return "", fmt.Errorf("repo/user: create: %w", db.Errorf(db.ErrInvalidArgument, "nickname is required"))
	}
	if p.FirstName == "" {
		return "", fmt.Errorf("repo/user: create %q: %w", p.Nickname, db.Errorf(db.ErrInvalidArgument, "first name is required"))
	}
	registered := orNow(p.RegisteredAt)

	err := r.s.ExecTx(ctx, func(tx *db.Tx) error {
		if err := checkUserConflicts(ctx, tx, noUser, p.Nickname, p.Email, p.Mobile); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, sqlInsertUser, p.Nickname, registered.Unix(), NullUnix(p.LastLoginAt))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sqlInsertProfile, id, p.FirstName,
			NullString(p.LastName), NullString(p.Email), NullString(p.Mobile),
			NullString(p.Gender), NullString(p.Avatar), NullString(p.BirthDate), NullString(p.Bio))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("repo/user: create %q: %w", p.Nickname, err)
	}
	return p.Nickname, nil
}

// checkUserConflicts reports the first unique user field already held by a
// user other than self.
func checkUserConflicts(ctx context.Context, q db.Querier, self int64, nickname string, email, mobile *string) error {
	var nickTaken, emailTaken, mobileTaken bool
	err := q.QueryRow(ctx, sqlUserConflicts,
		nickname, self,
		NullString(email), self,
		NullString(mobile), self,
	).Scan(&nickTaken, &emailTaken, &mobileTaken)
	if err != nil {
		return err
	}
	switch {
	case nickTaken:
		return db.Errorf(db.ErrConflict, "nickname %q already exists", nickname)
	case emailTaken:
		return db.Errorf(db.ErrConflict, "email %q already in use", *email)
	case mobileTaken:
		return db.Errorf(db.ErrConflict, "mobile %q already in use", *mobile)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Get / List
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the user with the given nickname, or nil when there is none.
func (r *userRepo) Get(ctx context.Context, nickname string) (*models.User, error) {
	_, u, err := scanUser(r.s.QueryRow(ctx, sqlGetUser, nickname))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo/user: get %q: %w", nickname, err)
	}
	return u, nil
}

// List returns every user in registration order. The slice is empty, never
// nil, when there are no users.
func (r *userRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.s.Query(ctx, sqlListUsers)
	if err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		_, u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("repo/user: scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Update: merge, re-validate, write
// ─────────────────────────────────────────────────────────────────────────────

// Update merges the non-nil fields of params into the stored user and writes
// the result back. Email and mobile are re-checked against every other user.
// It fails with db.ErrNotFound when nickname does not exist.
func (r *userRepo) Update(ctx context.Context, nickname string, p models.UpdateUserParams) (*models.User, error) {
	if p.FirstName != nil && *p.FirstName == "" {
		return nil, fmt.Errorf("repo/user: update %q: %w", nickname, db.Errorf(db.ErrInvalidArgument, "first name cannot be empty"))
	}

	var merged *models.User
	err := r.s.ExecTx(ctx, func(tx *db.Tx) error {
		id, cur, err := scanUser(tx.QueryRow(ctx, sqlGetUser, nickname))
		if db.IsNotFound(err) {
			return db.Errorf(db.ErrNotFound, "user %q", nickname)
		}
		if err != nil {
			return err
		}

		merged = mergeUser(cur, p)
		d := merged.Details
		if err := checkUserConflicts(ctx, tx, id, nickname, d.Email, d.Mobile); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlUpdateUser, NullUnix(d.LastLoginAt), id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sqlUpsertProfile, id, d.FirstName,
			NullString(d.LastName), NullString(d.Email), NullString(d.Mobile),
			NullString(d.Gender), NullString(merged.Summary.Avatar),
			NullString(d.BirthDate), NullString(merged.Summary.Bio))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo/user: update %q: %w", nickname, err)
	}
	return merged, nil
}

func mergeUser(cur *models.User, p models.UpdateUserParams) *models.User {
	out := *cur
	if p.Avatar != nil {
		out.Summary.Avatar = optional(p.Avatar)
	}
	if p.Bio != nil {
		out.Summary.Bio = optional(p.Bio)
	}
	if p.FirstName != nil {
		out.Details.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.Details.LastName = optional(p.LastName)
	}
	if p.Email != nil {
		out.Details.Email = optional(p.Email)
	}
	if p.Mobile != nil {
		out.Details.Mobile = optional(p.Mobile)
	}
	if p.Gender != nil {
		out.Details.Gender = optional(p.Gender)
	}
	if p.BirthDate != nil {
		out.Details.BirthDate = optional(p.BirthDate)
	}
	if p.LastLoginAt != nil {
		t := p.LastLoginAt.UTC().Truncate(time.Second)
		out.Details.LastLoginAt = &t
	}
	return &out
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes the user; the profile, posts and ratings it sent or received
// go with it by cascade. It reports whether a row was removed. Store errors,
// including a session with foreign keys off, are returned as errors.
func (r *userRepo) Delete(ctx context.Context, nickname string) (bool, error) {
	if err := requireForeignKeys(ctx, r.s); err != nil {
		return false, fmt.Errorf("repo/user: delete %q: %w", nickname, err)
	}
	res, err := r.s.Exec(ctx, sqlDeleteUser, nickname)
	if err != nil {
		return false, fmt.Errorf("repo/user: delete %q: %w", nickname, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/user: delete %q: %w", nickname, err)
	}
	return n > 0, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Existence checks / Count
// ─────────────────────────────────────────────────────────────────────────────

func (r *userRepo) Exists(ctx context.Context, nickname string) (bool, error) {
	return r.ExistsByNickname(ctx, nickname)
}

func (r *userRepo) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	ok, err := exists(ctx, r.s, sqlUserExists, nickname)
	if err != nil {
		return false, fmt.Errorf("repo/user: exists %q: %w", nickname, err)
	}
	return ok, nil
}

func (r *userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ok, err := exists(ctx, r.s, sqlEmailExists, email)
	if err != nil {
		return false, fmt.Errorf("repo/user: exists email: %w", err)
	}
	return ok, nil
}

func (r *userRepo) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	ok, err := exists(ctx, r.s, sqlMobileExists, mobile)
	if err != nil {
		return false, fmt.Errorf("repo/user: exists mobile: %w", err)
	}
	return ok, nil
}

// Count returns the total number of users.
func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.s.QueryRow(ctx, sqlCountUsers).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/user: count: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanUser: centralised column mapping
// ─────────────────────────────────────────────────────────────────────────────

// scanUser maps one sqlSelectUser row. Centralising the scan call means that
// adding/removing columns only requires a change in one place.
func scanUser(row rowScanner) (int64, *models.User, error) {
	var (
		id        int64
		u         models.User
		regDate   int64
		lastLogin sql.NullInt64
		firstName sql.NullString
		lastName  sql.NullString
		email     sql.NullString
		mobile    sql.NullString
		gender    sql.NullString
		avatar    sql.NullString
		birthDate sql.NullString
		bio       sql.NullString
	)
	err := row.Scan(&id, &u.Summary.Nickname, &regDate, &lastLogin,
		&firstName, &lastName, &email, &mobile, &gender,
		&avatar, &birthDate, &bio)
	if err != nil {
		return 0, nil, err
	}

	u.Summary.RegisteredAt = fromUnix(regDate)
	u.Summary.Avatar = stringPtr(avatar)
	u.Summary.Bio = stringPtr(bio)
	u.Details = models.UserDetails{
		FirstName:   firstName.String,
		LastName:    stringPtr(lastName),
		Email:       stringPtr(email),
		Mobile:      stringPtr(mobile),
		Gender:      stringPtr(gender),
		BirthDate:   stringPtr(birthDate),
		LastLoginAt: timePtr(lastLogin),
	}
	return id, &u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Compile-time interface assertion
// ─────────────────────────────────────────────────────────────────────────────

var _ UserRepository = (*userRepo)(nil)
