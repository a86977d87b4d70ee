package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
)

// ReadSession returns every frame of a session ordered by seq.
// Returns an empty slice (not nil) for an unknown session.
func (s *Store) ReadSession(ctx context.Context, id string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, direction, action, payload
		FROM frames
		WHERE session = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec       Record
			direction string
			action    string
			payload   string
		)
		if err := rows.Scan(&rec.Session, &rec.Seq, &direction, &action, &payload); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		rec.Direction = Direction(direction)
		rec.Action = ir.Action(action)
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return records, nil
}

// Sessions lists journaled sessions ordered by id. Session ids are UUIDv7,
// so this is also start order.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.resource, COUNT(f.seq), COALESCE(MAX(f.seq), 0)
		FROM sessions s
		LEFT JOIN frames f ON f.session = s.id
		GROUP BY s.id, s.resource
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Resource, &sess.Frames, &sess.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
