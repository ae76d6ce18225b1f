// Package uuidv7 mints time-ordered UUIDs (RFC 9562, version 7), so
// version and change-log rows sort chronologically on their id.
//
// Generation is delegated to github.com/google/uuid, whose v7 source
// keeps a monotonic counter within the same millisecond, so ids minted
// back-to-back still sort in mint order.
package uuidv7

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7.
func New() (uuid.UUID, error) {
	return uuid.NewV7()
}

// NewString returns a UUIDv7 in canonical string form.
func NewString() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
