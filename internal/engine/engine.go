package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/mutation"
	"github.com/roach88/gridsync/internal/rowstore"
	"github.com/roach88/gridsync/internal/selection"
	"github.com/roach88/gridsync/internal/store"
)

// ErrNoMenu is returned by SelectMenuItem when no context menu is open.
var ErrNoMenu = errors.New("no context menu open")

// Journal records the frames of a session. Implemented by *store.Store.
type Journal interface {
	BeginSession(ctx context.Context, id, resource string) error
	WriteFrame(ctx context.Context, rec store.Record) error
}

// Grid is the interactive table.
//
// Thread-safety model:
//   - Public methods: safe from any goroutine; each holds the grid lock
//     for its whole duration.
//   - Run(): must be called from exactly one goroutine.
//   - LoadTable and Retry dial without holding the lock.
type Grid struct {
	conn     *conn.Manager
	queue    *eventQueue
	clock    SeqClock
	journal  Journal
	sessions SessionIDGenerator
	rowIDs   rowstore.IDGenerator
	clip     menu.Clipboard
	sched    selection.Scheduler
	window   time.Duration
	onChange func()

	mu      sync.Mutex
	table   string
	state   conn.State
	rows    *rowstore.Store
	mut     *mutation.Coordinator
	sel     *selection.Engine
	menu    *menu.Menu
	hidden  map[string]bool
	pending error

	smu     sync.Mutex
	session string
}

// Option configures a Grid.
type Option func(*Grid)

// WithClock sets the logical clock stamping journaled frames.
func WithClock(c SeqClock) Option {
	return func(g *Grid) {
		g.clock = c
	}
}

// WithJournal records every frame of every session to j.
func WithJournal(j Journal) Option {
	return func(g *Grid) {
		g.journal = j
	}
}

// WithSessionIDs sets the generator naming journal sessions.
// Default: UUIDv7Generator.
func WithSessionIDs(gen SessionIDGenerator) Option {
	return func(g *Grid) {
		g.sessions = gen
	}
}

// WithRowIDs sets the generator for virtual row ids.
func WithRowIDs(gen rowstore.IDGenerator) Option {
	return func(g *Grid) {
		g.rowIDs = gen
	}
}

// WithClipboard sets the clipboard used by Cut, Copy and Paste.
// Default: an in-process clipboard.
func WithClipboard(c menu.Clipboard) Option {
	return func(g *Grid) {
		g.clip = c
	}
}

// WithScheduler sets the timer source for the double-click window.
func WithScheduler(s selection.Scheduler) Option {
	return func(g *Grid) {
		g.sched = s
	}
}

// WithDoubleClickWindow overrides the 300ms double-click window.
func WithDoubleClickWindow(d time.Duration) Option {
	return func(g *Grid) {
		g.window = d
	}
}

// WithOnChange registers a callback run after each event the loop applies,
// without the grid lock held.
func WithOnChange(f func()) Option {
	return func(g *Grid) {
		g.onChange = f
	}
}

// New creates a grid over mgr and subscribes to its frames, state changes
// and sends. No table is loaded until LoadTable.
func New(mgr *conn.Manager, opts ...Option) *Grid {
	g := &Grid{
		conn:     mgr,
		queue:    newEventQueue(),
		clock:    NewClock(),
		sessions: UUIDv7Generator{},
		clip:     &menu.MemoryClipboard{},
		sched:    selection.RealScheduler{},
		window:   selection.DefaultDoubleClickWindow,
		state:    conn.StateDisconnected,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.reset("")

	mgr.OnFrame(func(f ir.Frame) {
		g.queue.Enqueue(Event{Type: EventTypeFrame, Frame: f})
	})
	mgr.OnState(func(s conn.State, err error) {
		g.queue.Enqueue(Event{Type: EventTypeState, State: s, Err: err})
	})
	mgr.OnSend(g.recordOutbound)
	return g
}

// reset replaces the per-table state. Caller holds g.mu (or owns g).
func (g *Grid) reset(table string) {
	var storeOpts []rowstore.Option
	if g.rowIDs != nil {
		storeOpts = append(storeOpts, rowstore.WithIDGenerator(g.rowIDs))
	}
	g.table = table
	g.rows = rowstore.New(storeOpts...)
	g.mut = mutation.New(g.rows, g.conn)
	g.sel = selection.New(loopScheduler{inner: g.sched, queue: g.queue},
		selection.WithDoubleClickWindow(g.window),
		selection.WithCommit(g.commitEdit),
		selection.WithCellText(g.cellText),
		selection.WithRowIdentity(g.rows.RowID, g.rows.IndexOfRowID),
		selection.WithMenu(g.menuOpened),
	)
	g.menu = nil
	g.hidden = map[string]bool{}
	g.pending = nil
}

// LoadTable opens a session for the named table and requests its schema
// and first page of rows. Any previous table is discarded.
//
// On failure the error is also stored as the pending error.
func (g *Grid) LoadTable(ctx context.Context, name string) error {
	if g.queue.Closed() {
		return ErrClosed
	}
	_ = g.conn.Close()

	g.mu.Lock()
	if dropped := g.queue.Drain(); dropped > 0 {
		slog.Debug("dropped events from previous table", "count", dropped)
	}
	g.reset(name)
	g.mu.Unlock()

	res := conn.Table(name)
	g.beginSession(ctx, res)

	slog.Info("loading table", "table", name)
	if err := g.conn.Open(ctx, res); err != nil {
		g.mu.Lock()
		g.report(err)
		g.mu.Unlock()
		return fmt.Errorf("load table %s: %w", name, err)
	}
	return nil
}

// Retry clears the pending error and reopens the current table. Rows
// already held are kept; the reloaded snapshot reconciles into them.
func (g *Grid) Retry(ctx context.Context) error {
	if g.queue.Closed() {
		return ErrClosed
	}
	g.ClearError()
	if err := g.conn.Retry(ctx); err != nil {
		g.mu.Lock()
		g.report(err)
		g.mu.Unlock()
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// Close ends the session and stops Run.
func (g *Grid) Close() error {
	err := g.conn.Close()
	g.queue.Close()
	return err
}

// Run applies queued events until ctx is cancelled or the grid is closed.
//
// Event handling never stops the loop: errors are reported as the pending
// error or logged, and processing continues.
func (g *Grid) Run(ctx context.Context) error {
	slog.Debug("grid loop starting")

	for {
		if ev, ok := g.queue.TryDequeue(); ok {
			g.apply(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("grid loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case _, ok := <-g.queue.Wait():
			if !ok {
				g.Flush()
				slog.Debug("grid loop stopping", "reason", "closed")
				return nil
			}
		}
	}
}

// Flush applies every queued event on the calling goroutine and returns
// how many were applied. Used when no Run loop is active.
func (g *Grid) Flush() int {
	n := 0
	for {
		ev, ok := g.queue.TryDequeue()
		if !ok {
			return n
		}
		g.apply(ev)
		n++
	}
}

func (g *Grid) apply(ev Event) {
	g.mu.Lock()
	g.processEvent(ev)
	g.mu.Unlock()

	if g.onChange != nil {
		g.onChange()
	}
}

func (g *Grid) processEvent(ev Event) {
	switch ev.Type {
	case EventTypeFrame:
		g.applyFrame(ev.Frame)

	case EventTypeState:
		g.state = ev.State
		g.rows.SetConnected(ev.State == conn.StateConnected)
		if ev.Err != nil {
			g.report(ev.Err)
		}

	case EventTypeTimer:
		if ev.Fire != nil {
			ev.Fire()
		}

	default:
		slog.Warn("unknown event type", "type", int(ev.Type))
	}
}

func (g *Grid) applyFrame(f ir.Frame) {
	seq := g.recordInbound(f)

	out, err := g.rows.Reconcile(f)
	if err != nil {
		g.report(err)
		return
	}
	if out.Rejected != nil {
		slog.Warn("mutation rejected", "seq", seq, "error", mutation.Rejected(out.Rejected))
		return
	}
	slog.Debug("frame applied", "seq", seq, "action", f.Action, "rows", out.Rows)
	if f.Action == ir.ActionGetTableData && g.rows.IsLoaded() {
		slog.Info("table loaded", "table", g.table, "rows", g.rows.RowCount())
	}
}

// report stores fatal errors as the pending error and logs the rest.
// Caller holds g.mu.
func (g *Grid) report(err error) {
	if err == nil {
		return
	}
	if IsFatal(err) {
		slog.Error("grid error", "table", g.table, "error", err)
		g.pending = err
		return
	}
	slog.Warn("grid error", "table", g.table, "error", err)
}

// PendingError returns the error awaiting a retry or abort decision.
func (g *Grid) PendingError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// ClearError dismisses the pending error.
func (g *Grid) ClearError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = nil
}

// Status is a summary of the grid for status lines and dumps.
type Status struct {
	Table   string
	State   conn.State
	Loaded  bool
	Rows    int
	Pending rowstore.Pending
	Session string
	Err     error
}

// Status returns the current summary.
func (g *Grid) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Table:   g.table,
		State:   g.state,
		Loaded:  g.rows.IsLoaded(),
		Rows:    g.rows.RowCount(),
		Pending: g.rows.Pending(),
		Session: g.Session(),
		Err:     g.pending,
	}
}

// Rows returns a deep copy of the row store, hidden columns included.
func (g *Grid) Rows() rowstore.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rows.Snapshot()
}

// loopScheduler delivers timer callbacks through the event queue so they
// run under the grid lock like every other handler.
type loopScheduler struct {
	inner selection.Scheduler
	queue *eventQueue
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) selection.Timer {
	return s.inner.AfterFunc(d, func() {
		s.queue.Enqueue(Event{Type: EventTypeTimer, Fire: f})
	})
}
