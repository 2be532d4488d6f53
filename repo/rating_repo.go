package repo

import (
	"context"
	"fmt"

	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/ident"
	"github.com/Skryldev/critique/models"
)

// RatingRepository defines the contract for rating persistence operations.
// Ratings are addressed by their encoded identifier ("rtg-<n>").
type RatingRepository interface {
	Create(ctx context.Context, sender, receiver string, value int) (string, error)
	Get(ctx context.Context, id string) (*models.Rating, error)
	List(ctx context.Context, filter models.RatingFilter) ([]*models.Rating, error)
	Update(ctx context.Context, id string, value int) (*models.Rating, error)
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type ratingRepo struct {
	s *db.Session
}

// NewRatingRepo returns a RatingRepository that runs on s.
func NewRatingRepo(s *db.Session) RatingRepository {
	return &ratingRepo{s: s}
}

const (
	sqlInsertRating = `
		INSERT INTO ratings (timestamp, sender_id, receiver_id, rating)
		VALUES (?, ?, ?, ?)`

	sqlRatingPairExists = `
		SELECT EXISTS (SELECT 1 FROM ratings WHERE sender_id = ? AND receiver_id = ?)`

	sqlSelectRating = `
		SELECT r.ratings_id, r.timestamp, s.nickname, v.nickname, r.rating
		FROM   ratings r
		JOIN   users s ON s.user_id = r.sender_id
		JOIN   users v ON v.user_id = r.receiver_id`

	sqlGetRating = sqlSelectRating + `
		WHERE  r.ratings_id = ?`

	// An empty filter value matches every row.
	sqlListRatings = sqlSelectRating + `
		WHERE  (? = '' OR s.nickname = ?)
		AND    (? = '' OR v.nickname = ?)
		ORDER  BY r.timestamp DESC, r.ratings_id DESC`

	sqlUpdateRating = `
		UPDATE ratings SET rating = ? WHERE ratings_id = ?`

	sqlDeleteRating = `
		DELETE FROM ratings WHERE ratings_id = ?`

	sqlRatingExists = `
		SELECT EXISTS (SELECT 1 FROM ratings WHERE ratings_id = ?)`
)

// Create stores a rating from sender to receiver and returns its encoded id.
// Unknown nicknames fail with db.ErrNotFound. A second rating for the same
// pair fails with db.ErrConflict; use Update to change an existing one.
func (r *ratingRepo) Create(ctx context.Context, sender, receiver string, value int) (string, error) {
	var id int64
	err := r.s.ExecTx(ctx, func(tx *db.Tx) error {
		senderID, err := mustUserID(ctx, tx, "sender", sender)
		if err != nil {
			return err
		}
		receiverID, err := mustUserID(ctx, tx, "receiver", receiver)
		if err != nil {
			return err
		}
		taken, err := exists(ctx, tx, sqlRatingPairExists, senderID, receiverID)
		if err != nil {
			return err
		}
		if taken {
			return db.Errorf(db.ErrConflict, "%q already rated %q", sender, receiver)
		}
		res, err := tx.Exec(ctx, sqlInsertRating, now().Unix(), senderID, receiverID, value)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("repo/rating: create %q→%q: %w", sender, receiver, err)
	}
	return ident.EncodeRatingID(id), nil
}

// Get returns the rating, or nil when none has that id.
func (r *ratingRepo) Get(ctx context.Context, id string) (*models.Rating, error) {
	key, err := ident.DecodeRatingID(id)
	if err != nil {
		return nil, fmt.Errorf("repo/rating: get: %w", err)
	}
	rt, err := scanRating(r.s.QueryRow(ctx, sqlGetRating, key))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo/rating: get %s: %w", id, err)
	}
	return rt, nil
}

// List returns the ratings matching filter, newest first. It never returns a
// nil slice.
func (r *ratingRepo) List(ctx context.Context, f models.RatingFilter) ([]*models.Rating, error) {
	rows, err := r.s.Query(ctx, sqlListRatings, f.Sender, f.Sender, f.Receiver, f.Receiver)
	if err != nil {
		return nil, fmt.Errorf("repo/rating: list: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Rating, 0)
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("repo/rating: scan: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Update replaces the value of an existing rating and returns it.
func (r *ratingRepo) Update(ctx context.Context, id string, value int) (*models.Rating, error) {
	key, err := ident.DecodeRatingID(id)
	if err != nil {
		return nil, fmt.Errorf("repo/rating: update: %w", err)
	}

	var rt *models.Rating
	err = r.s.ExecTx(ctx, func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, sqlUpdateRating, value, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return db.Errorf(db.ErrNotFound, "rating %s", id)
		}
		rt, err = scanRating(tx.QueryRow(ctx, sqlGetRating, key))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo/rating: update %s: %w", id, err)
	}
	return rt, nil
}

// Delete removes the rating and reports whether it existed.
func (r *ratingRepo) Delete(ctx context.Context, id string) (bool, error) {
	key, err := ident.DecodeRatingID(id)
	if err != nil {
		return false, fmt.Errorf("repo/rating: delete: %w", err)
	}
	res, err := r.s.Exec(ctx, sqlDeleteRating, key)
	if err != nil {
		return false, fmt.Errorf("repo/rating: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/rating: delete %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *ratingRepo) Exists(ctx context.Context, id string) (bool, error) {
	key, err := ident.DecodeRatingID(id)
	if err != nil {
		return false, fmt.Errorf("repo/rating: exists: %w", err)
	}
	ok, err := exists(ctx, r.s, sqlRatingExists, key)
	if err != nil {
		return false, fmt.Errorf("repo/rating: exists %s: %w", id, err)
	}
	return ok, nil
}

func scanRating(row rowScanner) (*models.Rating, error) {
	var (
		rt  models.Rating
		key int64
		ts  int64
	)
	if err := row.Scan(&key, &ts, &rt.Sender, &rt.Receiver, &rt.Value); err != nil {
		return nil, err
	}
	rt.ID = ident.EncodeRatingID(key)
	rt.CreatedAt = fromUnix(ts)
	return &rt, nil
}

var _ RatingRepository = (*ratingRepo)(nil)
