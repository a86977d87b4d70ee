package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/rowstore"
	"github.com/roach88/gridsync/internal/selection"
	"github.com/roach88/gridsync/internal/store"
	"github.com/roach88/gridsync/internal/testutil"
)

const (
	schemaFrame = `{"action":"getTable","data":{"schema":{"columns":[{"name":"id","dataType":"integer"},{"name":"name","dataType":"string"}],"constraint":[{"key":"id"}]}}}`
	dataFrame   = `{"action":"getTableData","data":{"columns":["id","name"],"data":[[1,"ann"],[2,"bob"],[3,"cy"]]}}`
)

type fixture struct {
	dialer *testutil.MemoryDialer
	sched  *testutil.ManualScheduler
	clip   *menu.MemoryClipboard
	grid   *engine.Grid
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	f := &fixture{
		dialer: testutil.NewMemoryDialer(),
		sched:  testutil.NewManualScheduler(),
		clip:   &menu.MemoryClipboard{},
	}
	mgr := conn.NewManager(conn.Config{BaseURL: "ws://grid.test"}, f.dialer)
	base := []engine.Option{
		engine.WithScheduler(f.sched),
		engine.WithClipboard(f.clip),
		engine.WithRowIDs(testutil.NewSequenceGenerator("virtual")),
	}
	f.grid = engine.New(mgr, append(base, opts...)...)
	t.Cleanup(func() { f.grid.Close() })
	return f
}

func (f *fixture) push(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, f.dialer.Socket().PushJSON(raw))
	f.grid.Flush()
}

// load opens "users", answers with the schema and three rows, and forgets
// the initial requests.
func (f *fixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.grid.LoadTable(context.Background(), "users"))
	f.push(t, schemaFrame)
	f.push(t, dataFrame)
	require.True(t, f.grid.Status().Loaded)
	f.dialer.Socket().Reset()
}

func (f *fixture) sent(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, b := range f.dialer.Socket().Sent() {
		out = append(out, string(b))
	}
	return out
}

func TestGrid_LoadTable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.grid.LoadTable(context.Background(), "users"))

	assert.Equal(t, "ws://grid.test/table/users", f.dialer.LastURL())
	assert.Equal(t, []string{
		`{"action":"getTable"}`,
		`{"action":"getTableData","begin":0,"end":500}`,
	}, f.sent(t))

	f.push(t, schemaFrame)
	assert.False(t, f.grid.Status().Loaded, "schema alone does not load the table")
	f.push(t, dataFrame)

	st := f.grid.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, "users", st.Table)
	assert.Equal(t, conn.StateConnected, st.State)
	assert.Equal(t, 3, st.Rows)
	assert.NoError(t, st.Err)

	cols := f.grid.VisibleColumns()
	require.Len(t, cols, 2)
	assert.True(t, cols[0].IsPrimaryKey)
	assert.Equal(t, "name", cols[1].Name)

	rows := f.grid.VisibleRows()
	require.Len(t, rows, 3)
	assert.Equal(t, []ir.Value{ir.Int(2), ir.String("bob")}, rows[1].Cells)
}

func TestGrid_ReloadingSameSnapshotIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.push(t, dataFrame)

	assert.Equal(t, 3, f.grid.Status().Rows)
}

func TestGrid_EditKeyedRowDispatchesUpdate(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.EditCell(1, 1, "robert"))
	assert.Equal(t, []string{`{"action":"update","data":{"name":"robert"},"key":2}`}, f.sent(t))

	text, ok := f.grid.CellText(1, 1)
	require.True(t, ok)
	assert.Equal(t, "robert", text)
	assert.Equal(t, 1, f.grid.Status().Pending.Updates)

	f.push(t, `{"action":"update","key":2,"data":{"name":"robert"}}`)
	assert.Equal(t, 0, f.grid.Status().Pending.Updates)
}

func TestGrid_VirtualRowGating(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	idx := f.grid.AddRow(2)
	require.Equal(t, 3, idx)

	require.NoError(t, f.grid.EditCell(idx, 1, "dee"))
	assert.Empty(t, f.sent(t), "non-key edit of a keyless row is buffered")

	require.NoError(t, f.grid.EditCell(idx, 0, "42"))
	assert.Equal(t, []string{`{"action":"create","data":{"id":42,"name":"dee"}}`}, f.sent(t))

	rows := f.grid.Rows()
	assert.False(t, rows.Rows[idx].IsVirtual())
	assert.Equal(t, ir.Int(42), rows.Rows[idx].Cells[0])
}

func TestGrid_DeleteCapturesKeyBeforeRemoving(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.DeleteRow(1))
	assert.Equal(t, []string{`{"action":"delete","key":2}`}, f.sent(t))
	assert.Equal(t, 2, f.grid.Status().Rows)

	f.push(t, dataFrame)
	assert.Equal(t, 2, f.grid.Status().Rows, "stale snapshot does not resurrect a pending delete")
}

func TestGrid_DuplicateRow(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	idx, err := f.grid.DuplicateRow(0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	rows := f.grid.VisibleRows()
	require.Len(t, rows, 4)
	assert.True(t, rows[1].IsVirtual())
	assert.Equal(t, []ir.Value{ir.Null{}, ir.String("ann")}, rows[1].Cells)
	assert.Empty(t, f.sent(t))
}

func TestGrid_DoubleClickEditCommitsOnBlur(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	cell := selection.Cell(0, 1)

	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))
	f.grid.PointerUp(cell, selection.ButtonPrimary)
	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))

	sel := f.grid.Selection()
	require.NotNil(t, sel.Edit)
	assert.Equal(t, "ann", sel.Edit.Staged)

	require.True(t, f.grid.Stage("anna"))
	require.NoError(t, f.grid.Blur())

	assert.Equal(t, []string{`{"action":"update","data":{"name":"anna"},"key":1}`}, f.sent(t))
	assert.False(t, f.grid.Selection().Active)
}

// editCell double-clicks a body cell and stages value.
func (f *fixture) editCell(t *testing.T, row, col int, value string) {
	t.Helper()
	cell := selection.Cell(row, col)
	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))
	f.grid.PointerUp(cell, selection.ButtonPrimary)
	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))
	f.grid.PointerUp(cell, selection.ButtonPrimary)
	require.True(t, f.grid.Stage(value))
}

func TestGrid_EditFollowsRowAfterRemoteDelete(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.editCell(t, 1, 1, "robert")

	f.push(t, `{"action":"delete","key":1}`)
	edit := f.grid.Selection().Edit
	require.NotNil(t, edit)
	assert.Equal(t, 0, edit.Row)

	require.NoError(t, f.grid.Blur())
	assert.Equal(t, []string{`{"action":"update","data":{"name":"robert"},"key":2}`}, f.sent(t))
	rows := f.grid.VisibleRows()
	assert.Equal(t, ir.String("robert"), rows[0].Cells[1])
	assert.Equal(t, ir.String("cy"), rows[1].Cells[1])
}

func TestGrid_EditDroppedWhenItsRowIsDeletedRemotely(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.editCell(t, 1, 1, "robert")

	f.push(t, `{"action":"delete","key":2}`)
	assert.Nil(t, f.grid.Selection().Edit)

	require.NoError(t, f.grid.Blur())
	assert.Empty(t, f.sent(t))
	for _, r := range f.grid.VisibleRows() {
		assert.NotEqual(t, ir.String("robert"), r.Cells[1])
	}
}

func TestGrid_EditFollowsRowAfterMenuAddRow(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.editCell(t, 1, 1, "robert")

	f.grid.OpenMenu(selection.Coord{Row: selection.At(0), Col: selection.Unbounded})
	require.NoError(t, f.grid.SelectMenuItem(menu.AddRow))
	edit := f.grid.Selection().Edit
	require.NotNil(t, edit)
	assert.Equal(t, 2, edit.Row)

	require.NoError(t, f.grid.Blur())
	assert.Equal(t, []string{`{"action":"update","data":{"name":"robert"},"key":2}`}, f.sent(t))
	rows := f.grid.VisibleRows()
	require.Len(t, rows, 4)
	assert.True(t, rows[1].IsVirtual())
	assert.Equal(t, ir.Null{}, rows[1].Cells[1])
}

func TestGrid_EditFollowsRowAfterMenuDeleteAbove(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.editCell(t, 2, 1, "cyrus")

	f.grid.OpenMenu(selection.Coord{Row: selection.At(0), Col: selection.Unbounded})
	require.NoError(t, f.grid.SelectMenuItem(menu.DeleteRow))
	require.NoError(t, f.grid.Blur())

	assert.Equal(t, []string{
		`{"action":"delete","key":1}`,
		`{"action":"update","data":{"name":"cyrus"},"key":3}`,
	}, f.sent(t))
}

func TestGrid_DoubleClickWindowExpiresThroughLoop(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	cell := selection.Cell(0, 1)

	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))
	f.sched.Advance(selection.DefaultDoubleClickWindow)
	assert.Equal(t, 1, f.grid.Flush(), "timer callback is queued")

	require.NoError(t, f.grid.PointerDown(cell, selection.ButtonPrimary))
	assert.Nil(t, f.grid.Selection().Edit)
}

func TestGrid_CancelEditSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.StartEdit(2, 1))
	f.grid.Stage("changed")
	f.grid.CancelEdit()
	require.NoError(t, f.grid.Blur())
	assert.Empty(t, f.sent(t))

	assert.Error(t, f.grid.StartEdit(9, 0))
	assert.False(t, f.grid.Stage("x"))
}

func TestGrid_SchemaErrorIsPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.grid.LoadTable(context.Background(), "users"))
	f.push(t, `{"action":"getTable","data":{"schema":{"columns":[{"name":"a"},{"name":"b"}],"constraint":[{"key":"a"},{"key":"b"}]}}}`)

	err := f.grid.PendingError()
	var se *rowstore.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, rowstore.ErrCodeAmbiguousKey, se.Code)
	assert.True(t, engine.IsFatal(err))
	assert.False(t, engine.IsRetryable(err))
}

func TestGrid_MalformedFrameIsLoggedOnly(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.push(t, `{"action":"getTableData","data":{"columns":["id","name"],"data":[[4]]}}`)

	assert.NoError(t, f.grid.PendingError())
	assert.Equal(t, 3, f.grid.Status().Rows)
}

func TestGrid_RejectedMutationKeepsLocalChange(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	require.NoError(t, f.grid.EditCell(0, 1, "changed"))

	f.push(t, `{"action":"error","data":{"action":"update","key":1,"message":"read only"}}`)
	assert.NoError(t, f.grid.PendingError())
	text, _ := f.grid.CellText(0, 1)
	assert.Equal(t, "changed", text)
	assert.Equal(t, 0, f.grid.Status().Pending.Updates)
}

func TestGrid_DialFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	f.dialer.Fail(errors.New("connection refused"))

	err := f.grid.LoadTable(context.Background(), "users")
	require.Error(t, err)
	assert.True(t, conn.IsConnectionError(err))
	f.grid.Flush()

	pending := f.grid.PendingError()
	require.Error(t, pending)
	assert.True(t, engine.IsRetryable(pending))

	f.dialer.Fail(nil)
	require.NoError(t, f.grid.Retry(context.Background()))
	f.grid.Flush()
	assert.NoError(t, f.grid.PendingError())
	assert.Equal(t, conn.StateConnected, f.grid.Status().State)

	f.push(t, schemaFrame)
	f.push(t, dataFrame)
	assert.True(t, f.grid.Status().Loaded)
}

func TestGrid_ConnectionLost(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.dialer.Socket().Drop(errors.New("eof")))
	require.Eventually(t, func() bool {
		f.grid.Flush()
		return f.grid.PendingError() != nil
	}, 2*time.Second, 5*time.Millisecond)

	var cerr *conn.ConnectionError
	require.ErrorAs(t, f.grid.PendingError(), &cerr)
	assert.Equal(t, conn.ErrCodeLost, cerr.Code)
	assert.False(t, f.grid.Status().Loaded)

	err := f.grid.EditCell(0, 1, "offline")
	assert.ErrorIs(t, err, conn.ErrNotConnected)
	text, _ := f.grid.CellText(0, 1)
	assert.Equal(t, "offline", text, "optimistic change is kept")

	f.grid.ClearError()
	assert.NoError(t, f.grid.PendingError())
}

func TestGrid_HiddenColumnsShiftIndices(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.HideColumn(0))
	cols := f.grid.VisibleColumns()
	require.Len(t, cols, 1)
	assert.Equal(t, "name", cols[0].Name)
	assert.Equal(t, []ir.Value{ir.String("ann")}, f.grid.VisibleRows()[0].Cells)

	require.NoError(t, f.grid.EditCell(0, 0, "anne"))
	assert.Equal(t, []string{`{"action":"update","data":{"name":"anne"},"key":1}`}, f.sent(t))

	assert.ErrorIs(t, f.grid.HideColumn(5), rowstore.ErrIndexOutOfRange)

	f.grid.ShowColumns()
	assert.Len(t, f.grid.VisibleColumns(), 2)
}

func TestGrid_ContextMenuRouting(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	tests := []struct {
		target selection.Coord
		want   menu.Kind
	}{
		{selection.Coord{Row: selection.Unbounded, Col: selection.At(1)}, menu.KindColumn},
		{selection.Coord{Row: selection.At(2), Col: selection.Unbounded}, menu.KindRow},
		{selection.Cell(2, 1), menu.KindCell},
	}
	for _, tt := range tests {
		m := f.grid.OpenMenu(tt.target)
		assert.Equal(t, tt.want, m.Kind, tt.target.String())
		f.grid.CloseMenu()
	}

	_, open := f.grid.Menu()
	assert.False(t, open)
	assert.ErrorIs(t, f.grid.SelectMenuItem(menu.Copy), engine.ErrNoMenu)
}

func TestGrid_MenuDeleteRow(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	f.grid.OpenMenu(selection.Coord{Row: selection.At(1), Col: selection.Unbounded})
	require.NoError(t, f.grid.SelectMenuItem(menu.DeleteRow))

	assert.Equal(t, []string{`{"action":"delete","key":2}`}, f.sent(t))
	_, open := f.grid.Menu()
	assert.False(t, open, "choosing an item closes the menu")
}

func TestGrid_MenuAddRowInsertsAfterTarget(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	f.grid.OpenMenu(selection.Coord{Row: selection.At(0), Col: selection.Unbounded})
	require.NoError(t, f.grid.SelectMenuItem(menu.AddRow))

	rows := f.grid.VisibleRows()
	require.Len(t, rows, 4)
	assert.True(t, rows[1].IsVirtual())
}

func TestGrid_MenuSortUnsupported(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	f.grid.OpenMenu(selection.Coord{Row: selection.Unbounded, Col: selection.At(0)})
	assert.ErrorIs(t, f.grid.SelectMenuItem(menu.Sort), menu.ErrUnsupported)
}

func TestGrid_MenuOpenCancelsDragAndSurvivesBlur(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.PointerDown(selection.Cell(0, 0), selection.ButtonPrimary))
	f.grid.PointerOver(selection.Cell(1, 1), true)
	f.grid.OpenMenu(selection.Cell(1, 1))
	assert.False(t, f.grid.Selection().Active, "drag cancelled")

	require.NoError(t, f.grid.Blur())
	_, open := f.grid.Menu()
	assert.True(t, open, "blur while the menu is open is ignored")
}

func TestGrid_CopyAndPaste(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	require.NoError(t, f.grid.PointerDown(selection.Cell(0, 0), selection.ButtonPrimary))
	f.grid.PointerOver(selection.Cell(1, 1), true)
	f.grid.PointerUp(selection.Cell(1, 1), selection.ButtonPrimary)

	f.grid.OpenMenu(selection.Cell(1, 1))
	require.NoError(t, f.grid.SelectMenuItem(menu.Copy))
	text, _ := f.clip.ReadAll()
	assert.Equal(t, "1\tann\n2\tbob", text)
	assert.True(t, f.grid.IsSelected(1, 1), "frozen selection survives the menu")

	require.NoError(t, f.clip.WriteAll("zed"))
	f.sched.Advance(time.Second)
	f.grid.Flush()
	require.NoError(t, f.grid.PointerDown(selection.Cell(2, 1), selection.ButtonPrimary))
	f.grid.PointerUp(selection.Cell(2, 1), selection.ButtonPrimary)
	f.grid.OpenMenu(selection.Cell(2, 1))
	require.NoError(t, f.grid.SelectMenuItem(menu.Paste))

	assert.Equal(t, []string{`{"action":"update","data":{"name":"zed"},"key":3}`}, f.sent(t))
}

func TestGrid_CutClearsNonKeyCells(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	index := selection.Coord{Row: selection.At(0), Col: selection.Unbounded}
	require.NoError(t, f.grid.PointerDown(index, selection.ButtonPrimary))
	f.grid.PointerUp(index, selection.ButtonPrimary)
	f.grid.OpenMenu(index)
	require.NoError(t, f.grid.SelectMenuItem(menu.Cut))

	text, _ := f.clip.ReadAll()
	assert.Equal(t, "1\tann", text)
	assert.Equal(t, []string{`{"action":"update","data":{"name":""},"key":1}`}, f.sent(t))
}

func TestGrid_Journal(t *testing.T) {
	j, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	f := newFixture(t,
		engine.WithJournal(j),
		engine.WithSessionIDs(testutil.NewSequenceGenerator("session")),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	f.load(t)
	require.NoError(t, f.grid.EditCell(0, 1, "anna"))
	assert.Equal(t, "session-1", f.grid.Session())

	ctx := context.Background()
	records, err := j.ReadSession(ctx, "session-1")
	require.NoError(t, err)

	type entry struct {
		seq int64
		dir store.Direction
		act ir.Action
	}
	var got []entry
	for _, r := range records {
		got = append(got, entry{r.Seq, r.Direction, r.Action})
	}
	assert.Equal(t, []entry{
		{1, store.Outbound, ir.ActionGetTable},
		{2, store.Outbound, ir.ActionGetTableData},
		{3, store.Inbound, ir.ActionGetTable},
		{4, store.Inbound, ir.ActionGetTableData},
		{5, store.Outbound, ir.ActionUpdate},
	}, got)

	replayed := rowstore.New()
	res, err := j.Replay(ctx, "session-1", replayed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 3, replayed.RowCount())

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "table/users", sessions[0].Resource)
}

func TestGrid_RunAppliesEventsUntilCancelled(t *testing.T) {
	changed := make(chan struct{}, 16)
	f := newFixture(t, engine.WithOnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.grid.Run(ctx) }()

	require.NoError(t, f.grid.LoadTable(context.Background(), "users"))
	require.NoError(t, f.dialer.Socket().PushJSON(schemaFrame))
	require.NoError(t, f.dialer.Socket().PushJSON(dataFrame))

	require.Eventually(t, func() bool { return f.grid.Status().Loaded }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-changed:
	default:
		t.Fatal("change callback not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestGrid_CloseStopsRun(t *testing.T) {
	f := newFixture(t)
	done := make(chan error, 1)
	go func() { done <- f.grid.Run(context.Background()) }()

	require.NoError(t, f.grid.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.ErrorIs(t, f.grid.LoadTable(context.Background(), "users"), engine.ErrClosed)
}
