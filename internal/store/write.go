package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// BeginSession records a session and the resource it opened.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginSession(ctx context.Context, id, resource string) error {
	if id == "" {
		return fmt.Errorf("begin session: id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, resource)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, resource)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// WriteFrame appends a frame to its session.
// Uses ON CONFLICT(session, seq) DO NOTHING: rewriting a seq is ignored.
//
// The session must have been started with BeginSession (foreign key).
func (s *Store) WriteFrame(ctx context.Context, rec Record) error {
	if !rec.Direction.valid() {
		return fmt.Errorf("write frame: invalid direction %q", rec.Direction)
	}
	if !json.Valid(rec.Payload) {
		return fmt.Errorf("write frame: payload of seq %d is not JSON", rec.Seq)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (session, seq, direction, action, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		rec.Session,
		rec.Seq,
		string(rec.Direction),
		string(rec.Action),
		string(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
