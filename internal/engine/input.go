package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/selection"
)

// PointerDown forwards a press to the selection engine. A staged edit is
// committed first; its error, if any, is returned.
func (g *Grid) PointerDown(target selection.Coord, button selection.Button) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.PointerDown(target, button)
}

// PointerOver forwards pointer motion.
func (g *Grid) PointerOver(target selection.Coord, held bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sel.PointerOver(target, held)
}

// PointerUp forwards a release.
func (g *Grid) PointerUp(target selection.Coord, button selection.Button) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sel.PointerUp(target, button)
}

// Blur handles focus leaving the grid.
func (g *Grid) Blur() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.Blur()
}

// Stage replaces the staged value of the edit cursor.
func (g *Grid) Stage(value string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.Stage(value)
}

// StartEdit puts the edit cursor on a visible cell.
func (g *Grid) StartEdit(row, col int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cellText(row, col); !ok {
		return fmt.Errorf("edit (%d,%d): no such cell", row, col)
	}
	return g.sel.StartEdit(row, col)
}

// CommitEdit commits the staged value and leaves edit mode.
func (g *Grid) CommitEdit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.Commit()
}

// CancelEdit leaves edit mode without committing.
func (g *Grid) CancelEdit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sel.Cancel()
}

// Selection returns a copy of the selection state.
func (g *Grid) Selection() selection.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.Snapshot()
}

// IsSelected reports whether a visible body cell is selected.
func (g *Grid) IsSelected(row, col int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sel.IsSelected(row, col)
}

// OpenMenu opens the context menu routed from target, as a secondary
// press would.
func (g *Grid) OpenMenu(target selection.Coord) menu.Menu {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.sel.PointerDown(target, selection.ButtonSecondary)
	return *g.menu
}

// Menu returns the open context menu.
func (g *Grid) Menu() (menu.Menu, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.menu == nil {
		return menu.Menu{}, false
	}
	return *g.menu, true
}

// CloseMenu dismisses the context menu without choosing an item.
func (g *Grid) CloseMenu() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.menu = nil
	g.sel.CloseMenu()
}

// SelectMenuItem closes the open menu and runs item against its target.
func (g *Grid) SelectMenuItem(item menu.Item) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.menu == nil {
		return ErrNoMenu
	}
	m := *g.menu
	g.menu = nil
	g.sel.CloseMenu()

	if err := menu.Dispatch(m.Target, item, gridActions{g}, g.clip); err != nil {
		if errors.Is(err, menu.ErrUnsupported) {
			slog.Info("menu item not supported", "item", string(item))
		}
		return err
	}
	return nil
}

// menuOpened is the selection engine's menu hook.
func (g *Grid) menuOpened(target selection.Coord) {
	m := menu.Open(target)
	g.menu = &m
}

// gridActions runs menu items with the grid lock already held.
type gridActions struct {
	g *Grid
}

func (a gridActions) AddRow(after int) error {
	a.g.mut.AddRow(after)
	return nil
}

func (a gridActions) DuplicateRow(index int) error {
	_, err := a.g.mut.Duplicate(index)
	a.g.report(err)
	return err
}

func (a gridActions) DeleteRow(index int) error {
	return a.g.deleteRow(index)
}

func (a gridActions) HideColumn(col int) error {
	return a.g.hideColumn(col)
}

func (a gridActions) ShowColumns() {
	a.g.showColumns()
}

func (a gridActions) SelectionText() (string, bool) {
	g := a.g
	top, left, bottom, right, ok := g.sel.Bounds(g.rows.RowCount(), len(g.visible()))
	if !ok {
		return "", false
	}
	rows := make([][]string, 0, bottom-top+1)
	for r := top; r <= bottom; r++ {
		line := make([]string, 0, right-left+1)
		for c := left; c <= right; c++ {
			text, _ := g.cellText(r, c)
			line = append(line, text)
		}
		rows = append(rows, line)
	}
	return menu.FormatCells(rows), true
}

// ClearSelection empties the selected cells. Key cells are left alone so
// no row loses its identity.
func (a gridActions) ClearSelection() error {
	g := a.g
	keyCol := g.rows.KeyColumn()
	var errs []error
	for _, cell := range g.sel.Cells(g.rows.RowCount(), len(g.visible())) {
		row, _ := cell.Row.Index()
		col, _ := cell.Col.Index()
		sc, ok := g.storeCol(col)
		if !ok || sc == keyCol {
			continue
		}
		if v, ok := g.rows.Cell(row, sc); !ok || ir.IsNull(v) {
			continue
		}
		if err := g.commitEdit(row, col, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PasteText writes a block of text starting at the selection's top-left
// cell, or at the menu target when nothing is selected. Cells past the
// table edge are dropped.
func (a gridActions) PasteText(at selection.Coord, text string) error {
	g := a.g
	rowCount, colCount := g.rows.RowCount(), len(g.visible())

	top, left, _, _, ok := g.sel.Bounds(rowCount, colCount)
	if !ok {
		top, _ = at.Row.Index()
		left, _ = at.Col.Index()
	}

	var errs []error
	for r, line := range menu.ParseCells(text) {
		row := top + r
		if row >= rowCount {
			break
		}
		for c, value := range line {
			col := left + c
			if col >= colCount {
				break
			}
			if err := g.commitEdit(row, col, value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
