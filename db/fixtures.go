package db

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Fixtures is a dataset of raw rows keyed by surrogate ids. It is loaded
// straight into the tables, bypassing repository validation, and is meant for
// test and demo data only.
type Fixtures struct {
	Users   []UserFixture   `yaml:"users"`
	Posts   []PostFixture   `yaml:"posts"`
	Ratings []RatingFixture `yaml:"ratings"`
}

// UserFixture is one users row together with its users_profile row.
type UserFixture struct {
	ID        int64   `yaml:"user_id"`
	Nickname  string  `yaml:"nickname"`
	RegDate   int64   `yaml:"reg_date"`
	LastLogin *int64  `yaml:"last_login"`
	FirstName string  `yaml:"firstname"`
	LastName  *string `yaml:"lastname"`
	Email     *string `yaml:"email"`
	Mobile    *string `yaml:"mobile"`
	Gender    *string `yaml:"gender"`
	Avatar    *string `yaml:"avatar"`
	BirthDate *string `yaml:"birthdate"`
	Bio       *string `yaml:"bio"`
}

// PostFixture is one posts row.
type PostFixture struct {
	ID         int64  `yaml:"post_id"`
	Timestamp  int64  `yaml:"timestamp"`
	SenderID   int64  `yaml:"sender_id"`
	ReceiverID *int64 `yaml:"receiver_id"`
	ReplyTo    *int64 `yaml:"reply_to"`
	Text       string `yaml:"post_text"`
	Rating     *int   `yaml:"rating"`
	Anonymous  bool   `yaml:"anonymous"`
	Public     bool   `yaml:"public"`
}

// RatingFixture is one ratings row.
type RatingFixture struct {
	ID         int64 `yaml:"ratings_id"`
	Timestamp  int64 `yaml:"timestamp"`
	SenderID   int64 `yaml:"sender_id"`
	ReceiverID int64 `yaml:"receiver_id"`
	Value      int   `yaml:"rating"`
}

// ReadFixtures decodes a YAML dataset. Unknown keys are rejected so that a
// misspelled column does not silently load as NULL. An empty document yields
// an empty dataset.
func ReadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &Fixtures{}, nil
		}
		return nil, fmt.Errorf("critique/db: decode fixtures: %w", err)
	}
	return &f, nil
}

const (
	sqlFixtureUser = `
		INSERT INTO users (user_id, nickname, regDate, lastLogin)
		VALUES (?, ?, ?, ?)`

	sqlFixtureProfile = `
		INSERT INTO users_profile
		       (user_id, firstname, lastname, email, mobile, gender, avatar, birthdate, bio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlFixturePost = `
		INSERT INTO posts
		       (post_id, timestamp, sender_id, receiver_id, reply_to, post_text, rating, anonymous, public)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlFixtureRating = `
		INSERT INTO ratings (ratings_id, timestamp, sender_id, receiver_id, rating)
		VALUES (?, ?, ?, ?, ?)`
)

// LoadFixtures inserts f in one transaction: users, profiles, posts, then
// ratings, each in file order. Posts replying to other posts must come after
// their parent when foreign keys are enforced.
func (s *Store) LoadFixtures(ctx context.Context, f *Fixtures) error {
	if f == nil {
		return nil
	}
	return s.withSession(ctx, func(sess *Session) error {
		err := sess.ExecTx(ctx, func(_ *Tx) error {
			if err := BatchExec(sess, ctx, sqlFixtureUser, f.Users, func(u UserFixture) []any {
				return []any{u.ID, u.Nickname, u.RegDate, u.LastLogin}
			}); err != nil {
				return fmt.Errorf("users: %w", err)
			}
			if err := BatchExec(sess, ctx, sqlFixtureProfile, f.Users, func(u UserFixture) []any {
				return []any{u.ID, u.FirstName, u.LastName, u.Email, u.Mobile, u.Gender, u.Avatar, u.BirthDate, u.Bio}
			}); err != nil {
				return fmt.Errorf("users_profile: %w", err)
			}
			if err := BatchExec(sess, ctx, sqlFixturePost, f.Posts, func(p PostFixture) []any {
				return []any{p.ID, p.Timestamp, p.SenderID, p.ReceiverID, p.ReplyTo, p.Text, p.Rating, p.Anonymous, p.Public}
			}); err != nil {
				return fmt.Errorf("posts: %w", err)
			}
			if err := BatchExec(sess, ctx, sqlFixtureRating, f.Ratings, func(r RatingFixture) []any {
				return []any{r.ID, r.Timestamp, r.SenderID, r.ReceiverID, r.Value}
			}); err != nil {
				return fmt.Errorf("ratings: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("critique/db: load fixtures: %w", err)
		}
		s.logger.InfoContext(ctx, "critique/db: fixtures loaded",
			"users", len(f.Users), "posts", len(f.Posts), "ratings", len(f.Ratings))
		return nil
	})
}
