package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/rowstore"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Session string
	Applied int
	Skipped int
	LastSeq int64
}

// Replay rebuilds a row store from a session by reconciling its inbound
// frames in seq order. Outbound frames are not applied: local optimistic
// state only survives through the acknowledgements it produced.
//
// Frames the live grid would have dropped (malformed payloads) are skipped
// and counted. A schema error stops the replay.
func (s *Store) Replay(ctx context.Context, session string, rows *rowstore.Store) (ReplayResult, error) {
	result := ReplayResult{Session: session}

	records, err := s.ReadSession(ctx, session)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}

	rows.SetConnected(true)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.LastSeq = rec.Seq
		if rec.Direction != Inbound {
			continue
		}

		f, err := ir.DecodeFrame(rec.Payload)
		if err != nil {
			slog.Warn("replay skipped frame", "session", session, "seq", rec.Seq, "error", err)
			result.Skipped++
			continue
		}
		if _, err := rows.Reconcile(f); err != nil {
			if rowstore.IsSchemaError(err) {
				return result, fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
			slog.Warn("replay skipped frame", "session", session, "seq", rec.Seq, "action", f.Action, "error", err)
			result.Skipped++
			continue
		}
		result.Applied++
	}
	return result, nil
}
