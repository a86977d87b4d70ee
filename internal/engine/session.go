package engine

import "github.com/google/uuid"

// SessionIDGenerator names journal sessions.
// Implemented by UUIDv7Generator and testutil.SequenceGenerator.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids, so listing
// sessions by id lists them by start time.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
