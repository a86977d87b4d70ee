package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/gridsync/internal/ir"
)

// createTestStore creates a journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustFrame(t *testing.T, raw string) ir.Frame {
	t.Helper()
	f, err := ir.DecodeFrame([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeFrame(%s): %v", raw, err)
	}
	return f
}

// writeSession journals frames in order, stamping seq 1..n.
func writeSession(t *testing.T, s *Store, session string, frames ...any) {
	t.Helper()
	ctx := context.Background()
	if err := s.BeginSession(ctx, session, "table/users"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	for i, f := range frames {
		var (
			rec Record
			err error
		)
		switch v := f.(type) {
		case ir.Frame:
			rec, err = InboundRecord(session, int64(i+1), v)
		case ir.Command:
			rec, err = OutboundRecord(session, int64(i+1), v)
		default:
			t.Fatalf("unexpected frame type %T", f)
		}
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if err := s.WriteFrame(ctx, rec); err != nil {
			t.Fatalf("WriteFrame %d: %v", i, err)
		}
	}
}
