package models

import "time"

// User is the joined users + users_profile record, split the way clients
// consume it: a public summary and the private details.
type User struct {
	Summary UserSummary
	Details UserDetails
}

// UserSummary holds the fields shown wherever a user is listed.
type UserSummary struct {
	Nickname     string
	RegisteredAt time.Time
	Avatar       *string
	Bio          *string
}

// UserDetails holds every other user field. Nil pointers are NULL columns.
type UserDetails struct {
	FirstName   string
	LastName    *string
	Email       *string
	Mobile      *string
	Gender      *string
	BirthDate   *string
	LastLoginAt *time.Time
}

// CreateUserParams holds the fields accepted when registering a user.
// Keeping input types separate from the record prevents accidental
// mass-assignment and makes the contract explicit.
type CreateUserParams struct {
	Nickname  string
	FirstName string

	// RegisteredAt defaults to the current time when zero.
	RegisteredAt time.Time
	LastLoginAt  *time.Time

	LastName  *string
	Email     *string
	Mobile    *string
	Gender    *string
	Avatar    *string
	BirthDate *string
	Bio       *string
}

// UpdateUserParams holds fields that can be changed. All fields are pointers
// so callers only set what needs changing; nil keeps the stored value.
// The nickname is immutable and therefore absent.
type UpdateUserParams struct {
	// Summary group
	Avatar *string
	Bio    *string

	// Details group
	FirstName   *string
	LastName    *string
	Email       *string
	Mobile      *string
	Gender      *string
	BirthDate   *string
	LastLoginAt *time.Time
}
