package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/store"
	"github.com/roach88/gridsync/internal/testutil"
)

// settleTimeout bounds how long a drop step waits for the state change.
const settleTimeout = 2 * time.Second

// Harness drives a Grid against an in-memory remote store.
type Harness struct {
	store  *store.Store
	grid   *engine.Grid
	dialer *testutil.MemoryDialer
	sched  *testutil.ManualScheduler
	clip   *menu.MemoryClipboard

	setupSock *testutil.MemorySocket
	setupSent int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal, a manual
// scheduler and deterministic session, row and seq generators, so the
// trace is reproducible.
//
// Execution flow:
//  1. Open the table and push the setup frames
//  2. Execute the steps, flushing the event queue after each
//  3. Capture the trace and final state
//  4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		dialer: testutil.NewMemoryDialer(),
		sched:  testutil.NewManualScheduler(),
		clip:   &menu.MemoryClipboard{},
	}
	opts := []engine.Option{
		engine.WithJournal(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithSessionIDs(testutil.NewSequenceGenerator("session")),
		engine.WithRowIDs(testutil.NewSequenceGenerator("virtual")),
		engine.WithScheduler(h.sched),
		engine.WithClipboard(h.clip),
	}
	if scenario.DoubleClickMs > 0 {
		opts = append(opts, engine.WithDoubleClickWindow(time.Duration(scenario.DoubleClickMs)*time.Millisecond))
	}
	mgr := conn.NewManager(conn.Config{BaseURL: "ws://harness.test"}, h.dialer)
	h.grid = engine.New(mgr, opts...)
	defer h.grid.Close()

	ctx := context.Background()
	if err := h.grid.LoadTable(ctx, scenario.Table); err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	for i, raw := range scenario.Setup {
		if err := h.push(raw); err != nil {
			return nil, fmt.Errorf("setup frame %d: %w", i, err)
		}
	}
	h.setupSock = h.dialer.Socket()
	h.setupSent = len(h.setupSock.Sent())

	result := NewResult()
	for i, step := range scenario.Steps {
		err := h.execute(ctx, step)
		h.grid.Flush()
		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d: expected error containing %q", i, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("step %d: error %q does not contain %q", i, err, step.ExpectError))
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d: %v", i, err))
		}
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step.
func (h *Harness) execute(ctx context.Context, st Step) error {
	switch {
	case st.Frame != "":
		return h.push(st.Frame)

	case st.PointerDown != nil:
		b, _ := parseButton(st.PointerDown.Button)
		return h.grid.PointerDown(coord(st.PointerDown.Row, st.PointerDown.Col), b)

	case st.PointerOver != nil:
		held := st.PointerOver.Held == nil || *st.PointerOver.Held
		h.grid.PointerOver(coord(st.PointerOver.Row, st.PointerOver.Col), held)
		return nil

	case st.PointerUp != nil:
		b, _ := parseButton(st.PointerUp.Button)
		h.grid.PointerUp(coord(st.PointerUp.Row, st.PointerUp.Col), b)
		return nil

	case st.Advance != nil:
		h.sched.Advance(time.Duration(*st.Advance) * time.Millisecond)
		return nil

	case st.Stage != nil:
		if !h.grid.Stage(*st.Stage) {
			return errors.New("stage: not editing")
		}
		return nil

	case st.Commit:
		return h.grid.CommitEdit()

	case st.Cancel:
		h.grid.CancelEdit()
		return nil

	case st.Blur:
		return h.grid.Blur()

	case st.Menu != nil:
		h.grid.OpenMenu(coord(st.Menu.Row, st.Menu.Col))
		if st.Menu.Item == "" {
			return nil
		}
		return h.grid.SelectMenuItem(menu.Item(st.Menu.Item))

	case st.AddRow != nil:
		h.grid.AddRow(*st.AddRow)
		return nil

	case st.DeleteRow != nil:
		return h.grid.DeleteRow(*st.DeleteRow)

	case st.Edit != nil:
		return h.grid.EditCell(st.Edit.Row, st.Edit.Col, st.Edit.Value)

	case st.Hide != nil:
		return h.grid.HideColumn(*st.Hide)

	case st.Clipboard != nil:
		return h.clip.WriteAll(*st.Clipboard)

	case st.Drop != "":
		return h.drop(st.Drop)

	case st.Retry:
		return h.grid.Retry(ctx)
	}
	return errors.New("empty step")
}

// push delivers an inbound frame and applies it.
func (h *Harness) push(raw string) error {
	sock := h.dialer.Socket()
	if sock == nil {
		return errors.New("no session")
	}
	if err := sock.PushJSON(raw); err != nil {
		return err
	}
	h.grid.Flush()
	return nil
}

// drop fails the session and waits for the grid to see it. The state
// change is reported from the reader goroutine after the read returns.
func (h *Harness) drop(reason string) error {
	sock := h.dialer.Socket()
	if sock == nil {
		return errors.New("no session")
	}
	if err := sock.Drop(errors.New(reason)); err != nil {
		return err
	}
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		h.grid.Flush()
		if h.grid.Status().State != conn.StateConnected {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return errors.New("drop: session still connected")
}

// capture reads the journal and the grid into result.
//
// Sent covers the latest session only; setup traffic is excluded when that
// is still the session the setup ran on.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	records, err := h.store.ReadSession(ctx, h.grid.Session())
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	for _, rec := range records {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:       rec.Seq,
			Direction: string(rec.Direction),
			Action:    string(rec.Action),
			Payload:   rec.Payload,
		})
	}

	if sock := h.dialer.Socket(); sock != nil {
		sent := sock.Sent()
		if sock == h.setupSock && h.setupSent <= len(sent) {
			sent = sent[h.setupSent:]
		}
		for _, b := range sent {
			result.Sent = append(result.Sent, string(b))
		}
	}

	for _, col := range h.grid.VisibleColumns() {
		result.Columns = append(result.Columns, col.Name)
	}
	for _, row := range h.grid.VisibleRows() {
		result.Rows = append(result.Rows, ir.CloneCells(row.Cells))
	}
	result.Selection = h.grid.Selection()

	status := h.grid.Status()
	result.State = status.State.String()
	if status.Err != nil {
		result.PendingError = status.Err.Error()
	}
	text, _ := h.clip.ReadAll()
	result.Clipboard = text
	return nil
}
