package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Skryldev/critique/db"
	"github.com/Skryldev/critique/models"
)

// PostRepository defines the contract for post persistence operations.
// Posts are addressed by their numeric id.
type PostRepository interface {
	Create(ctx context.Context, params models.CreatePostParams) (int64, error)
	Get(ctx context.Context, id int64) (*models.Post, error)
	ListByUser(ctx context.Context, nickname string, role models.PostRole) ([]*models.Post, error)
	ListReplies(ctx context.Context, id int64) ([]*models.Post, error)
	Update(ctx context.Context, id int64, text string) (*models.Post, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

type postRepo struct {
	s *db.Session
}

// NewPostRepo returns a PostRepository that runs on s.
func NewPostRepo(s *db.Session) PostRepository {
	return &postRepo{s: s}
}

const (
	sqlInsertPost = `
		INSERT INTO posts
		       (timestamp, sender_id, receiver_id, reply_to, post_text, rating, anonymous, public)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlPostSender = `
		SELECT sender_id FROM posts WHERE post_id = ?`

	sqlSelectPost = `
		SELECT p.post_id, p.timestamp, s.nickname, v.nickname, p.reply_to,
		       p.post_text, p.rating, p.anonymous, p.public
		FROM   posts p
		JOIN   users s ON s.user_id = p.sender_id
		LEFT   JOIN users v ON v.user_id = p.receiver_id`

	sqlGetPost = sqlSelectPost + `
		WHERE  p.post_id = ?`

	sqlPostsBySender = sqlSelectPost + `
		WHERE  p.sender_id = ?
		ORDER  BY p.timestamp DESC, p.post_id DESC`

	sqlPostsByReceiver = sqlSelectPost + `
		WHERE  p.receiver_id = ?
		ORDER  BY p.timestamp DESC, p.post_id DESC`

	sqlPostReplies = sqlSelectPost + `
		WHERE  p.reply_to = ?
		ORDER  BY p.timestamp ASC, p.post_id ASC`

	sqlUpdatePost = `
		UPDATE posts SET post_text = ? WHERE post_id = ?`

	sqlDeletePost = `
		DELETE FROM posts WHERE post_id = ?`

	sqlPostExists = `
		SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = ?)`
)

// Create stores a post and returns its id.
//
// A reply (ReplyTo set) cannot carry a rating and fails with
// db.ErrInvalidArgument before anything is read. An unknown parent, sender or
// receiver fails with db.ErrNotFound. When a reply names no receiver it is
// addressed to the sender of the parent post.
func (r *postRepo) Create(ctx context.Context, p models.CreatePostParams) (int64, error) {
	if p.ReplyTo != nil && p.Rating != nil {
		return 0, fmt.Errorf("repo/post: create: %w", db.Errorf(db.ErrInvalidArgument, "a reply cannot carry a rating"))
	}
	if p.Text == "" {
		return 0, fmt.Errorf("repo/post: create: %w", db.Errorf(db.ErrInvalidArgument, "post text is required"))
	}
	anonymous := boolOr(p.Anonymous, true)
	public := boolOr(p.Public, false)
	created := orNow(p.CreatedAt)

	var id int64
	err := r.s.ExecTx(ctx, func(tx *db.Tx) error {
		senderID, err := mustUserID(ctx, tx, "sender", p.Sender)
		if err != nil {
			return err
		}

		var receiverID sql.NullInt64
		if p.Receiver != "" {
			rid, err := mustUserID(ctx, tx, "receiver", p.Receiver)
			if err != nil {
				return err
			}
			receiverID = sql.NullInt64{Int64: rid, Valid: true}
		}

		if p.ReplyTo != nil {
			var parentSender int64
			err := tx.QueryRow(ctx, sqlPostSender, *p.ReplyTo).Scan(&parentSender)
			if db.IsNotFound(err) {
				return db.Errorf(db.ErrNotFound, "parent post %d", *p.ReplyTo)
			}
			if err != nil {
				return err
			}
			if !receiverID.Valid {
				receiverID = sql.NullInt64{Int64: parentSender, Valid: true}
			}
		}

		var rating sql.NullInt64
		if p.Rating != nil {
			rating = sql.NullInt64{Int64: int64(*p.Rating), Valid: true}
		}

		res, err := tx.Exec(ctx, sqlInsertPost, created.Unix(), senderID, receiverID,
			p.ReplyTo, p.Text, rating, anonymous, public)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("repo/post: create from %q: %w", p.Sender, err)
	}
	return id, nil
}

// Get returns the post, or nil when none has that id. Receiver is nil for
// posts without one.
func (r *postRepo) Get(ctx context.Context, id int64) (*models.Post, error) {
	p, err := scanPost(r.s.QueryRow(ctx, sqlGetPost, id))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo/post: get %d: %w", id, err)
	}
	return p, nil
}

// ListByUser returns the posts nickname sent (RoleSender) or received
// (RoleReceiver), newest first. An unknown nickname yields an empty slice.
func (r *postRepo) ListByUser(ctx context.Context, nickname string, role models.PostRole) ([]*models.Post, error) {
	var query string
	switch role {
	case models.RoleSender:
		query = sqlPostsBySender
	case models.RoleReceiver:
		query = sqlPostsByReceiver
	default:
		return nil, fmt.Errorf("repo/post: list: %w", db.Errorf(db.ErrInvalidArgument, "unknown role %d", int(role)))
	}

	uid, ok, err := userIDByNickname(ctx, r.s, nickname)
	if err != nil {
		return nil, fmt.Errorf("repo/post: list %s %q: %w", role, nickname, err)
	}
	if !ok {
		return []*models.Post{}, nil
	}
	return r.list(ctx, query, uid)
}

// ListReplies returns the direct replies to post id, oldest first.
func (r *postRepo) ListReplies(ctx context.Context, id int64) ([]*models.Post, error) {
	return r.list(ctx, sqlPostReplies, id)
}

func (r *postRepo) list(ctx context.Context, query string, arg int64) ([]*models.Post, error) {
	rows, err := r.s.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repo/post: list: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("repo/post: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update replaces the text of a post and returns it.
func (r *postRepo) Update(ctx context.Context, id int64, text string) (*models.Post, error) {
	if text == "" {
		return nil, fmt.Errorf("repo/post: update %d: %w", id, db.Errorf(db.ErrInvalidArgument, "post text is required"))
	}

	var p *models.Post
	err := r.s.ExecTx(ctx, func(tx *db.Tx) error {
		res, err := tx.Exec(ctx, sqlUpdatePost, text, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return db.Errorf(db.ErrNotFound, "post %d", id)
		}
		p, err = scanPost(tx.QueryRow(ctx, sqlGetPost, id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("repo/post: update %d: %w", id, err)
	}
	return p, nil
}

// Delete removes the post and, by cascade, its replies. It reports whether
// the post existed.
func (r *postRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if err := requireForeignKeys(ctx, r.s); err != nil {
		return false, fmt.Errorf("repo/post: delete %d: %w", id, err)
	}
	res, err := r.s.Exec(ctx, sqlDeletePost, id)
	if err != nil {
		return false, fmt.Errorf("repo/post: delete %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/post: delete %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *postRepo) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := exists(ctx, r.s, sqlPostExists, id)
	if err != nil {
		return false, fmt.Errorf("repo/post: exists %d: %w", id, err)
	}
	return ok, nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		p        models.Post
		ts       int64
		receiver sql.NullString
		replyTo  sql.NullInt64
		rating   sql.NullInt64
	)
	err := row.Scan(&p.ID, &ts, &p.Sender, &receiver, &replyTo,
		&p.Text, &rating, &p.Anonymous, &p.Public)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = fromUnix(ts)
	p.Receiver = stringPtr(receiver)
	p.ReplyTo = int64Ptr(replyTo)
	p.Rating = intPtr(rating)
	return &p, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

var _ PostRepository = (*postRepo)(nil)
