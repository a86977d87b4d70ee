// Package selection tracks pointer interaction over the grid: the selection
// rectangle, the edit cursor and the double-click state machine.
//
// REGIONS:
//
// The header row has an unbounded row, the index column an unbounded col,
// and the body has both axes bounded. The corner (both unbounded) selects
// everything.
//
// NORMALIZATION:
//
// A press sets the anchor to the lower bound of the target (unbounded axes
// become index 0) and the floating corner to its upper bound (unbounded axes
// stay unbounded and reach the last index). Membership uses min/max spans,
// so the corner order never matters.
//
// DOUBLE CLICK:
//
//	Idle --press(c)--> Armed(c) --timer--> Idle
//	Armed(c) --press(c)--> Idle + edit mode at c (body cells only)
//	Armed(c) --press(d)--> Armed(d)
//
// The Engine is not safe for concurrent use. Scheduler callbacks must be
// delivered on the same goroutine as every other call.
package selection

import (
	"log/slog"
	"time"
)

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Edit is the edit cursor: one body cell with a staged value that differs
// from the committed value until it is committed.
//
// RowID is the row's stable identity when one is known. Row is re-resolved
// from it before every read and before the commit, so rows inserted or
// removed above the cursor do not redirect the edit.
type Edit struct {
	Row      int
	Col      int
	RowID    string
	Staged   string
	Original string
}

// CommitFunc receives a staged edit. The grid routes it to the mutation
// coordinator.
type CommitFunc func(row, col int, value string) error

// CellTextFunc returns the committed text of a body cell.
type CellTextFunc func(row, col int) (string, bool)

// RowIDFunc returns a stable identity for a body row.
type RowIDFunc func(row int) (string, bool)

// RowIndexFunc returns the current index of a row identity, or -1 when the
// row is gone.
type RowIndexFunc func(id string) int

// MenuFunc is called when a context menu opens at target.
type MenuFunc func(target Coord)

type clickState int

const (
	idle clickState = iota
	armed
)

// Engine is the selection state machine.
type Engine struct {
	sched  Scheduler
	window time.Duration

	commit   CommitFunc
	cellText CellTextFunc
	onMenu   MenuFunc
	rowID    RowIDFunc
	rowIndex RowIndexFunc

	active   bool
	anchor   Coord
	floating Coord
	mouseUp  *Coord
	edit     *Edit

	menuOpen   bool
	menuTarget Coord

	state    clickState
	armedAt  Coord
	timer    Timer
	clickGen int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDoubleClickWindow overrides the 300ms double-click window.
func WithDoubleClickWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithCommit sets the hook that receives staged edits.
func WithCommit(f CommitFunc) Option {
	return func(e *Engine) {
		e.commit = f
	}
}

// WithCellText sets the lookup used to initialise the edit cursor.
func WithCellText(f CellTextFunc) Option {
	return func(e *Engine) {
		e.cellText = f
	}
}

// WithRowIdentity sets the lookups that pin the edit cursor to its row.
// Without them the cursor follows the row index.
func WithRowIdentity(id RowIDFunc, index RowIndexFunc) Option {
	return func(e *Engine) {
		e.rowID = id
		e.rowIndex = index
	}
}

// WithMenu sets the hook called when a context menu opens.
func WithMenu(f MenuFunc) Option {
	return func(e *Engine) {
		e.onMenu = f
	}
}

// New creates an idle engine with no selection.
func New(sched Scheduler, opts ...Option) *Engine {
	if sched == nil {
		sched = RealScheduler{}
	}
	e := &Engine{sched: sched, window: DefaultDoubleClickWindow}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PointerDown handles a press at target.
//
// A non-primary press opens the context menu at target and cancels any
// drag in progress. A primary press flushes the staged edit, starts a new
// rectangle at target and feeds the double-click state machine.
func (e *Engine) PointerDown(target Coord, button Button) error {
	if button != ButtonPrimary {
		e.openMenu(target)
		return nil
	}

	err := e.flush()
	e.menuOpen = false

	e.active = true
	e.anchor = target.lowerBound()
	e.floating = target.upperBound()
	e.mouseUp = nil

	if e.state == armed && e.armedAt == target {
		e.disarm()
		e.enterEdit(target)
		return err
	}
	e.arm(target)
	return err
}

// PointerOver extends the rectangle while the primary button is held and
// the pointer has not been released.
func (e *Engine) PointerOver(target Coord, held bool) {
	if !held || !e.active || e.mouseUp != nil {
		return
	}
	e.floating = target.upperBound()
}

// PointerUp freezes the rectangle.
func (e *Engine) PointerUp(target Coord, button Button) {
	if button != ButtonPrimary || !e.active {
		return
	}
	up := target.upperBound()
	e.mouseUp = &up
}

// IsSelected reports whether body cell (row, col) lies in the rectangle.
func (e *Engine) IsSelected(row, col int) bool {
	if !e.active {
		return false
	}
	return e.Rect().Contains(row, col)
}

// Active reports whether a rectangle exists.
func (e *Engine) Active() bool {
	return e.active
}

// Rect returns the current rectangle. Only meaningful when Active.
func (e *Engine) Rect() Rect {
	return Rect{Anchor: e.anchor, Floating: e.floating}
}

// Dragging reports whether the primary button is down and the rectangle
// still follows the pointer.
func (e *Engine) Dragging() bool {
	return e.active && e.mouseUp == nil
}

// Cells enumerates the selected body cells row-major, resolving unbounded
// axes against the table size.
func (e *Engine) Cells(rowCount, colCount int) []Coord {
	if !e.active {
		return nil
	}
	top, left, bottom, right, ok := e.Rect().Bounds(rowCount, colCount)
	if !ok {
		return nil
	}
	out := make([]Coord, 0, (bottom-top+1)*(right-left+1))
	for r := top; r <= bottom; r++ {
		for c := left; c <= right; c++ {
			out = append(out, Cell(r, c))
		}
	}
	return out
}

// Bounds returns the selected span clamped to the table size.
func (e *Engine) Bounds(rowCount, colCount int) (top, left, bottom, right int, ok bool) {
	if !e.active {
		return 0, 0, 0, 0, false
	}
	return e.Rect().Bounds(rowCount, colCount)
}

// Editing returns a copy of the edit cursor, or nil.
func (e *Engine) Editing() *Edit {
	e.resolveEdit()
	if e.edit == nil {
		return nil
	}
	cp := *e.edit
	return &cp
}

// Stage replaces the staged value of the edit cursor.
// Returns false when not in edit mode.
func (e *Engine) Stage(value string) bool {
	e.resolveEdit()
	if e.edit == nil {
		return false
	}
	e.edit.Staged = value
	return true
}

// StartEdit enters edit mode at a body cell without a double click, e.g.
// from the keyboard. Any staged edit is flushed first.
func (e *Engine) StartEdit(row, col int) error {
	err := e.flush()
	target := Cell(row, col)
	e.active = true
	e.anchor = target
	e.floating = target
	up := target
	e.mouseUp = &up
	e.enterEdit(target)
	return err
}

// Commit flushes the staged edit and leaves edit mode.
func (e *Engine) Commit() error {
	return e.flush()
}

// Cancel drops the staged edit and leaves edit mode.
func (e *Engine) Cancel() {
	e.edit = nil
}

// Blur handles focus leaving the grid. While a context menu is open it
// does nothing; otherwise the staged edit is committed and all selection
// state is cleared.
func (e *Engine) Blur() error {
	if e.menuOpen {
		return nil
	}
	err := e.flush()
	e.clear()
	e.disarm()
	return err
}

// MenuOpen reports whether a context menu is open, and its target.
func (e *Engine) MenuOpen() (Coord, bool) {
	return e.menuTarget, e.menuOpen
}

// CloseMenu marks the context menu closed.
func (e *Engine) CloseMenu() {
	e.menuOpen = false
}

// Armed reports whether a first click is waiting for a second.
func (e *Engine) Armed() bool {
	return e.state == armed
}

// Snapshot is the read-side contract of the selection.
type Snapshot struct {
	Active   bool
	Anchor   Coord
	Floating Coord
	Frozen   bool
	Edit     *Edit
	Menu     *Coord
}

// Snapshot returns a copy of the selection state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Active:   e.active,
		Anchor:   e.anchor,
		Floating: e.floating,
		Frozen:   e.mouseUp != nil,
		Edit:     e.Editing(),
	}
	if e.menuOpen {
		t := e.menuTarget
		s.Menu = &t
	}
	return s
}

func (e *Engine) openMenu(target Coord) {
	if e.Dragging() {
		e.clear()
	}
	e.disarm()
	e.menuOpen = true
	e.menuTarget = target
	slog.Debug("context menu opened", "target", target.String())
	if e.onMenu != nil {
		e.onMenu(target)
	}
}

func (e *Engine) enterEdit(target Coord) {
	if !target.IsBody() {
		return
	}
	row, _ := target.Row.Index()
	col, _ := target.Col.Index()
	text := ""
	if e.cellText != nil {
		t, ok := e.cellText(row, col)
		if !ok {
			return
		}
		text = t
	}
	e.edit = &Edit{Row: row, Col: col, Staged: text, Original: text}
	if e.rowID != nil && e.rowIndex != nil {
		e.edit.RowID, _ = e.rowID(row)
	}
	slog.Debug("edit started", "row", row, "col", col)
}

// resolveEdit moves the edit cursor to its row's current index. The edit
// is dropped when the row no longer exists. A single-cell rectangle on the
// edit cell moves with it.
func (e *Engine) resolveEdit() {
	if e.edit == nil || e.edit.RowID == "" {
		return
	}
	idx := e.rowIndex(e.edit.RowID)
	if idx == e.edit.Row {
		return
	}
	old := Cell(e.edit.Row, e.edit.Col)
	if idx < 0 {
		slog.Debug("edit dropped, row removed", "row", e.edit.Row, "col", e.edit.Col)
		e.edit = nil
		return
	}
	e.edit.Row = idx
	if e.active && e.anchor == old && e.floating == old {
		e.anchor = Cell(idx, e.edit.Col)
		e.floating = e.anchor
		if e.mouseUp != nil {
			up := e.anchor
			e.mouseUp = &up
		}
	}
}

// flush commits the staged edit, if it changed, and leaves edit mode.
func (e *Engine) flush() error {
	e.resolveEdit()
	edit := e.edit
	e.edit = nil
	if edit == nil || edit.Staged == edit.Original || e.commit == nil {
		return nil
	}
	return e.commit(edit.Row, edit.Col, edit.Staged)
}

func (e *Engine) clear() {
	e.active = false
	e.anchor = Coord{}
	e.floating = Coord{}
	e.mouseUp = nil
	e.edit = nil
}

func (e *Engine) arm(target Coord) {
	e.disarm()
	e.clickGen++
	gen := e.clickGen
	e.state = armed
	e.armedAt = target
	e.timer = e.sched.AfterFunc(e.window, func() { e.expire(gen) })
}

func (e *Engine) disarm() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.state = idle
}

// expire ends the armed window. Stale timers (from an earlier arm) are
// ignored.
func (e *Engine) expire(gen int) {
	if e.state == armed && e.clickGen == gen {
		e.state = idle
		e.timer = nil
	}
}
