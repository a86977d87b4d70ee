package rowstore

import "github.com/google/uuid"

// IDGenerator produces virtual row ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable virtual row ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
