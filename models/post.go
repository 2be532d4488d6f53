package models

import "time"

// Post is a message from one user to another, or a reply in a thread.
type Post struct {
	ID        int64
	CreatedAt time.Time
	Sender    string
	// Receiver is nil for posts addressed to nobody in particular.
	Receiver  *string
	ReplyTo   *int64
	Text      string
	Rating    *int
	Anonymous bool
	Public    bool
}

// CreatePostParams holds the fields accepted when creating a post.
type CreatePostParams struct {
	Sender string
	// Receiver may be empty. A reply without a receiver is addressed to the
	// sender of the parent post.
	Receiver string
	ReplyTo  *int64
	Text     string
	// Rating must be nil on replies.
	Rating *int
	// Anonymous defaults to true, Public to false.
	Anonymous *bool
	Public    *bool
	// CreatedAt defaults to the current time when zero.
	CreatedAt time.Time
}

// PostRole selects which side of a post a user is matched on.
type PostRole int

const (
	RoleSender PostRole = iota + 1
	RoleReceiver
)

func (r PostRole) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	}
	return "unknown"
}
