// Package tui renders a grid in the terminal and feeds mouse and keyboard
// input to it.
//
// Mouse presses, drags and releases become pointer events on the grid, so
// selection, double-click editing and context menus behave exactly as they
// do for any other front end. The keyboard adds a cell cursor for moving,
// editing and opening menus without a mouse.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/selection"
)

// changedMsg is sent when the grid applied an event.
type changedMsg struct{}

// loadedMsg carries the result of LoadTable or Retry.
type loadedMsg struct{ err error }

// Model is the bubbletea model of the grid view.
type Model struct {
	ctx     context.Context
	grid    *engine.Grid
	changes <-chan struct{}
	table   string

	width, height    int
	scrollX, scrollY int
	cursorRow        int
	cursorCol        int

	held      bool
	menuIndex int

	input   textinput.Model
	editing bool
	editAt  [2]int

	notice string
}

// New creates a model that loads table into grid when started. changes
// receives a value after every event the grid applies; see
// engine.WithOnChange.
func New(ctx context.Context, grid *engine.Grid, table string, changes <-chan struct{}) Model {
	input := textinput.New()
	input.Prompt = ""
	input.CharLimit = 4096
	return Model{
		ctx:     ctx,
		grid:    grid,
		changes: changes,
		table:   table,
		input:   input,
	}
}

// Run starts the program on the terminal and blocks until it exits or
// ctx is cancelled.
func Run(ctx context.Context, grid *engine.Grid, table string, changes <-chan struct{}, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(ctx, grid, table, changes),
		append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)...)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), waitForChange(m.changes))
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.grid.LoadTable(m.ctx, m.table)}
	}
}

func (m Model) retry() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.grid.Retry(m.ctx)}
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.clampCursor()
		m.sync()
		return m, waitForChange(m.changes)

	case loadedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		m.sync()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.grid.PendingError() != nil {
			return m.updatePendingError(msg)
		}
		if _, ok := m.grid.Menu(); ok {
			m.updateMenu(msg)
			m.sync()
			return m, nil
		}
		if m.editing {
			m.updateEdit(msg)
			m.sync()
			return m, nil
		}
		return m.updateTable(msg)
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if err := m.grid.Blur(); err != nil {
		m.notice = err.Error()
	}
	return m, tea.Quit
}

// updatePendingError offers retry or abort for a fatal grid error.
func (m Model) updatePendingError(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		m.notice = "retrying..."
		return m, m.retry()
	case "q", "esc":
		return m.quit()
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) {
	open, _ := m.grid.Menu()
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(open.Items)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex < len(open.Items) {
			m.choose(open.Items[m.menuIndex])
		}
	case "esc", "q":
		m.grid.CloseMenu()
	}
}

func (m *Model) choose(item menu.Item) {
	if err := m.grid.SelectMenuItem(item); err != nil {
		m.notice = fmt.Sprintf("%s: %v", item, err)
		return
	}
	m.notice = ""
}

func (m *Model) updateEdit(msg tea.KeyMsg) {
	switch msg.String() {
	case "enter":
		m.report(m.grid.CommitEdit())
	case "esc":
		m.grid.CancelEdit()
	case "tab":
		row, col := m.editAt[0], m.editAt[1]
		m.report(m.grid.CommitEdit())
		if col+1 < len(m.grid.VisibleColumns()) {
			m.cursorRow, m.cursorCol = row, col+1
			m.report(m.grid.StartEdit(row, col+1))
		}
	default:
		m.input, _ = m.input.Update(msg)
		m.grid.Stage(m.input.Value())
	}
}

func (m Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.grid.Status().Rows
	cols := len(m.grid.VisibleColumns())

	switch msg.String() {
	case "q":
		return m.quit()
	case "esc":
		m.report(m.grid.Blur())
	case "up", "k":
		m.cursorRow--
	case "down", "j":
		m.cursorRow++
	case "left", "h":
		m.cursorCol--
	case "right", "l":
		m.cursorCol++
	case "home":
		m.cursorCol = 0
	case "end":
		m.cursorCol = cols - 1
	case "pgup":
		m.cursorRow -= max(m.pageSize(), 1)
	case "pgdown":
		m.cursorRow += max(m.pageSize(), 1)
	case " ":
		if rows > 0 && cols > 0 {
			target := selection.Cell(m.cursorRow, m.cursorCol)
			m.report(m.grid.PointerDown(target, selection.ButtonPrimary))
			m.grid.PointerUp(target, selection.ButtonPrimary)
		}
	case "enter", "e":
		if rows > 0 && cols > 0 {
			m.report(m.grid.StartEdit(m.cursorRow, m.cursorCol))
		}
	case "m":
		m.openMenu(selection.Cell(m.cursorRow, m.cursorCol))
	case "R":
		m.openMenu(selection.Coord{Row: selection.At(m.cursorRow), Col: selection.Unbounded})
	case "C":
		m.openMenu(selection.Coord{Row: selection.Unbounded, Col: selection.At(m.cursorCol)})
	case "a":
		m.cursorRow = m.grid.AddRow(m.cursorRow)
	case "r":
		if m.grid.Status().State != conn.StateConnected {
			m.notice = "reconnecting..."
			return m, m.retry()
		}
	}

	m.clampCursor()
	m.sync()
	return m, nil
}

func (m *Model) openMenu(target selection.Coord) {
	m.grid.OpenMenu(target)
	m.menuIndex = 0
}

// handleMouse translates a mouse event into pointer events.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	l := m.layout()

	switch msg.Type {
	case tea.MouseWheelUp:
		m.scrollY = max(m.scrollY-1, 0)

	case tea.MouseWheelDown:
		m.scrollY = min(m.scrollY+1, max(l.rowCount-1, 0))

	case tea.MouseLeft:
		if m.held {
			m.drag(l, msg.X, msg.Y)
			return
		}
		if open, ok := m.grid.Menu(); ok {
			if i, hit := m.menuHit(l, open, msg.Y); hit {
				m.choose(open.Items[i])
				return
			}
			m.grid.CloseMenu()
		}
		target, ok := l.hitTest(msg.X, msg.Y)
		if !ok {
			return
		}
		m.held = true
		m.moveCursor(target)
		m.report(m.grid.PointerDown(target, selection.ButtonPrimary))

	case tea.MouseMotion:
		if m.held {
			m.drag(l, msg.X, msg.Y)
		}

	case tea.MouseRelease:
		if !m.held {
			return
		}
		m.held = false
		if target, ok := l.dragTarget(msg.X, msg.Y); ok {
			m.grid.PointerUp(target, selection.ButtonPrimary)
		}

	case tea.MouseRight, tea.MouseMiddle:
		target, ok := l.hitTest(msg.X, msg.Y)
		if !ok {
			return
		}
		button := selection.ButtonSecondary
		if msg.Type == tea.MouseMiddle {
			button = selection.ButtonMiddle
		}
		m.held = false
		m.menuIndex = 0
		m.report(m.grid.PointerDown(target, button))
	}
}

func (m *Model) drag(l layout, x, y int) {
	if target, ok := l.dragTarget(x, y); ok {
		m.grid.PointerOver(target, true)
	}
}

// menuHit returns the item under screen line y. Items are listed one per
// line inside the menu box drawn under the table body.
func (m *Model) menuHit(l layout, open menu.Menu, y int) (int, bool) {
	first := bodyTop + l.bodyRows + 2
	i := y - first
	if i < 0 || i >= len(open.Items) {
		return 0, false
	}
	return i, true
}

func (m *Model) moveCursor(target selection.Coord) {
	if r, ok := target.Row.Index(); ok {
		m.cursorRow = r
	}
	if c, ok := target.Col.Index(); ok {
		m.cursorCol = c
	}
}

// sync mirrors the grid's edit cursor into the text input.
func (m *Model) sync() {
	edit := m.grid.Selection().Edit
	switch {
	case edit == nil:
		if m.editing {
			m.input.Blur()
			m.editing = false
		}
	case !m.editing || m.editAt != [2]int{edit.Row, edit.Col}:
		m.editing = true
		m.editAt = [2]int{edit.Row, edit.Col}
		m.cursorRow, m.cursorCol = edit.Row, edit.Col
		m.input.SetValue(edit.Staged)
		m.input.CursorEnd()
		m.input.Focus()
	}
	m.scrollToCursor()
}

func (m *Model) report(err error) {
	if err != nil {
		m.notice = err.Error()
	}
}

func (m *Model) clampCursor() {
	rows := m.grid.Status().Rows
	cols := len(m.grid.VisibleColumns())
	m.cursorRow = min(max(m.cursorRow, 0), max(rows-1, 0))
	m.cursorCol = min(max(m.cursorCol, 0), max(cols-1, 0))
}

func (m *Model) scrollToCursor() {
	page := m.pageSize()
	if m.cursorRow < m.scrollY {
		m.scrollY = m.cursorRow
	}
	if page > 0 && m.cursorRow >= m.scrollY+page {
		m.scrollY = m.cursorRow - page + 1
	}
	if m.cursorCol < m.scrollX {
		m.scrollX = m.cursorCol
	}
	for m.scrollX < m.cursorCol {
		l := m.layout()
		if m.cursorCol < l.lastCol {
			break
		}
		m.scrollX++
	}
}

// pageSize is the number of body rows on screen, or 0 before the first
// window size message.
func (m Model) pageSize() int {
	if m.height == 0 {
		return 0
	}
	return max(m.height-chrome-m.extraLines(), 1)
}

// extraLines counts lines drawn below the body besides the chrome.
func (m Model) extraLines() int {
	n := 0
	if open, ok := m.grid.Menu(); ok {
		n += len(open.Items) + 3
	}
	if m.grid.PendingError() != nil || m.notice != "" {
		n++
	}
	return n
}

func (m Model) layout() layout {
	return computeLayout(m.grid.VisibleColumns(), m.grid.VisibleRows(),
		m.width, m.height, m.scrollX, m.scrollY, m.extraLines())
}

func (m Model) View() string {
	var b strings.Builder
	status := m.grid.Status()
	cols := m.grid.VisibleColumns()
	rows := m.grid.VisibleRows()
	l := computeLayout(cols, rows, m.width, m.height, m.scrollX, m.scrollY, m.extraLines())

	b.WriteString(m.viewTitle(status))
	b.WriteString("\n")

	if !status.Loaded && len(cols) == 0 {
		b.WriteString(dimStyle.Render(" loading..."))
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.viewHeader(cols, l))
		b.WriteString("\n")
		b.WriteString(m.viewSeparator(l))
		b.WriteString("\n")
		for r := l.firstRow; r < l.firstRow+l.bodyRows; r++ {
			b.WriteString(m.viewRow(r, rows[r], l))
			b.WriteString("\n")
		}
	}

	if open, ok := m.grid.Menu(); ok {
		b.WriteString(m.viewMenu(open))
		b.WriteString("\n")
	}

	switch {
	case status.Err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf(" error: %v  (r retry, q quit)", status.Err)))
		b.WriteString("\n")
	case m.notice != "":
		b.WriteString(errorStyle.Render(" " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatus(status, len(cols)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(" click select  drag extend  double-click edit  right-click menu  m/R/C menu  a add  esc blur  q quit"))
	return b.String()
}

func (m Model) viewTitle(status engine.Status) string {
	title := titleStyle.Render(" " + m.table)
	state := stateStyle(status.State == conn.StateConnected).Render(status.State.String())
	return fmt.Sprintf("%s  %s", title, state)
}

func (m Model) viewHeader(cols []ir.Column, l layout) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.Repeat(" ", l.indexWidth)))
	b.WriteString(dimStyle.Render("│"))
	for c := l.firstCol; c < l.lastCol; c++ {
		name := cols[c].Name
		if cols[c].IsPrimaryKey {
			name += "*"
		}
		b.WriteString(headerStyle.Render(" " + fit(name, l.widths[c]) + " "))
		b.WriteString(dimStyle.Render("│"))
	}
	return b.String()
}

func (m Model) viewSeparator(l layout) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("─", l.indexWidth))
	b.WriteString("┼")
	for c := l.firstCol; c < l.lastCol; c++ {
		b.WriteString(strings.Repeat("─", l.widths[c]+2))
		b.WriteString("┼")
	}
	return dimStyle.Render(b.String())
}

func (m Model) viewRow(r int, row ir.Row, l layout) string {
	var b strings.Builder

	if row.IsVirtual() {
		b.WriteString(virtualStyle.Render(fmt.Sprintf("%*s ", l.indexWidth-1, "+")))
	} else {
		b.WriteString(indexStyle.Render(fmt.Sprintf("%*d ", l.indexWidth-1, r+1)))
	}
	b.WriteString(dimStyle.Render("│"))

	for c := l.firstCol; c < l.lastCol; c++ {
		w := l.widths[c]
		var text string
		if c < len(row.Cells) {
			text = ir.Text(row.Cells[c])
		}

		switch {
		case m.editing && m.editAt == [2]int{r, c}:
			b.WriteString(editStyle.Render(" " + fit(m.input.Value()+"_", w) + " "))
		case m.grid.IsSelected(r, c):
			b.WriteString(selectedStyle.Render(" " + fit(text, w) + " "))
		case r == m.cursorRow && c == m.cursorCol:
			b.WriteString(" " + cursorStyle.Render(fit(text, w)) + " ")
		default:
			b.WriteString(" " + fit(text, w) + " ")
		}
		b.WriteString(dimStyle.Render("│"))
	}
	return b.String()
}

func (m Model) viewMenu(open menu.Menu) string {
	lines := make([]string, 0, len(open.Items)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("%s %s", open.Kind, "menu")))
	for i, item := range open.Items {
		if i == m.menuIndex {
			lines = append(lines, menuHotStyle.Render(" "+string(item)+" "))
		} else {
			lines = append(lines, menuItemStyle.Render(" "+string(item)+" "))
		}
	}
	return menuStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) viewStatus(status engine.Status, cols int) string {
	mode := "NORMAL"
	switch {
	case m.editing:
		mode = "EDIT"
	case m.held:
		mode = "SELECT"
	}
	s := fmt.Sprintf(" [%d,%d] %s  %dx%d", m.cursorRow, m.cursorCol, mode, cols, status.Rows)
	if p := status.Pending; p.Inserts+p.Updates+p.Deletes > 0 {
		s += fmt.Sprintf("  pending +%d ~%d -%d", p.Inserts, p.Updates, p.Deletes)
	}
	return statusStyle.Render(s)
}
