package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/store"
)

// Session returns the id of the current journal session, or "" when no
// journal is configured.
func (g *Grid) Session() string {
	g.smu.Lock()
	defer g.smu.Unlock()
	return g.session
}

func (g *Grid) beginSession(ctx context.Context, res conn.Resource) {
	if g.journal == nil {
		return
	}
	id := g.sessions.Generate()
	if err := g.journal.BeginSession(ctx, id, res.String()); err != nil {
		slog.Warn("journal unavailable", "resource", res.String(), "error", err)
		id = ""
	} else {
		slog.Info("session started", "session", id, "resource", res.String())
	}

	g.smu.Lock()
	g.session = id
	g.smu.Unlock()
}

// recordInbound stamps f and journals it. Returns the seq.
func (g *Grid) recordInbound(f ir.Frame) int64 {
	seq := g.clock.Next()
	g.write(seq, func(session string) (store.Record, error) {
		return store.InboundRecord(session, seq, f)
	})
	return seq
}

// recordOutbound stamps cmd and journals it. Runs on the sending
// goroutine, which may hold the grid lock.
func (g *Grid) recordOutbound(cmd ir.Command) {
	seq := g.clock.Next()
	slog.Debug("frame sent", "seq", seq, "action", cmd.Action)
	g.write(seq, func(session string) (store.Record, error) {
		return store.OutboundRecord(session, seq, cmd)
	})
}

func (g *Grid) write(seq int64, build func(session string) (store.Record, error)) {
	if g.journal == nil {
		return
	}
	session := g.Session()
	if session == "" {
		return
	}
	rec, err := build(session)
	if err != nil {
		slog.Warn("journal write failed", "session", session, "seq", seq, "error", err)
		return
	}
	if err := g.journal.WriteFrame(context.Background(), rec); err != nil {
		slog.Warn("journal write failed", "session", session, "seq", seq, "error", err)
	}
}
