package models

import "time"

// Rating is the score one user gives another. There is at most one rating
// per (Sender, Receiver) pair.
type Rating struct {
	// ID is the encoded identifier, e.g. "rtg-7".
	ID        string
	CreatedAt time.Time
	Sender    string
	Receiver  string
	Value     int
}

// RatingFilter narrows a rating listing. Empty fields do not filter; set
// fields are combined with AND.
type RatingFilter struct {
	Sender   string
	Receiver string
}
