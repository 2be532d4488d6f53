// Package ident converts internal row keys to the identifiers exposed on the
// wire and back. Ratings are encoded as "rtg-<n>", posts as the bare decimal
// key. Users are keyed by nickname and never get an encoded form.
package ident

import (
	"strconv"

	"github.com/Skryldev/critique/db"
)

// RatingPrefix starts every encoded rating identifier.
const RatingPrefix = "rtg-"

// EncodeRatingID returns the external identifier of rating row n.
func EncodeRatingID(n int64) string {
	return RatingPrefix + strconv.FormatInt(n, 10)
}

// DecodeRatingID parses an identifier produced by EncodeRatingID.
// Anything other than "rtg-" followed by decimal digits that fit an int64
// fails with db.ErrMalformedIdentifier.
func DecodeRatingID(s string) (int64, error) {
	if len(s) <= len(RatingPrefix) || s[:len(RatingPrefix)] != RatingPrefix {
		return 0, malformed("rating", s)
	}
	return parseDigits("rating", s, s[len(RatingPrefix):])
}

// FormatPostID returns the external identifier of post row n.
func FormatPostID(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ParsePostID parses a decimal post identifier.
func ParsePostID(s string) (int64, error) {
	return parseDigits("post", s, s)
}

// parseDigits accepts ASCII digits only, so signs, spaces and underscores
// that strconv would otherwise tolerate or report differently are rejected
// up front.
func parseDigits(kind, raw, digits string) (int64, error) {
	if digits == "" {
		return 0, malformed(kind, raw)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, malformed(kind, raw)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, &db.DBError{Sentinel: db.ErrMalformedIdentifier, Cause: err, Message: kind + " id " + strconv.Quote(raw)}
	}
	return n, nil
}

func malformed(kind, raw string) error {
	return db.Errorf(db.ErrMalformedIdentifier, "%s id %q", kind, raw)
}
