package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/rowstore"
)

// Column indices passed to and returned from Grid methods are visible
// indices: hidden columns are skipped. Row indices are store indices.

// VisibleColumns returns the columns shown, in rendering order.
func (g *Grid) VisibleColumns() []ir.Column {
	g.mu.Lock()
	defer g.mu.Unlock()
	cols := g.rows.Columns()
	out := make([]ir.Column, 0, len(cols))
	for _, i := range g.visible() {
		out = append(out, cols[i])
	}
	return out
}

// VisibleRows returns a copy of every row restricted to visible columns.
func (g *Grid) VisibleRows() []ir.Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	vis := g.visible()
	out := make([]ir.Row, g.rows.RowCount())
	for r := range out {
		row, _ := g.rows.Row(r)
		cells := make([]ir.Value, len(vis))
		for c, i := range vis {
			if i < len(row.Cells) {
				cells[c] = row.Cells[i]
			} else {
				cells[c] = ir.Null{}
			}
		}
		out[r] = ir.Row{Cells: cells, VirtualID: row.VirtualID}
	}
	return out
}

// CellText returns the display text of a visible cell.
func (g *Grid) CellText(row, col int) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cellText(row, col)
}

// AddRow inserts an empty virtual row after index and returns its
// position. Out-of-range indices are clamped.
func (g *Grid) AddRow(after int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mut.AddRow(after)
}

// DuplicateRow inserts a keyless copy of the row at index below it.
func (g *Grid) DuplicateRow(index int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, err := g.mut.Duplicate(index)
	g.report(err)
	return idx, err
}

// DeleteRow removes the row at index optimistically and dispatches a
// delete for its key. Keyless rows are removed locally only.
func (g *Grid) DeleteRow(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteRow(index)
}

// EditCell commits value to a visible cell through the mutation
// coordinator, bypassing the edit cursor.
func (g *Grid) EditCell(row, col int, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commitEdit(row, col, value)
}

// HideColumn hides a visible column and clears the selection.
func (g *Grid) HideColumn(col int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hideColumn(col)
}

// ShowColumns reveals every hidden column.
func (g *Grid) ShowColumns() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.showColumns()
}

// visible returns store indices of the shown columns.
func (g *Grid) visible() []int {
	cols := g.rows.Columns()
	out := make([]int, 0, len(cols))
	for i, c := range cols {
		if !g.hidden[c.Name] {
			out = append(out, i)
		}
	}
	return out
}

// storeCol maps a visible column index to a store index.
func (g *Grid) storeCol(col int) (int, bool) {
	vis := g.visible()
	if col < 0 || col >= len(vis) {
		return 0, false
	}
	return vis[col], true
}

func (g *Grid) cellText(row, col int) (string, bool) {
	sc, ok := g.storeCol(col)
	if !ok {
		return "", false
	}
	v, ok := g.rows.Cell(row, sc)
	if !ok {
		return "", false
	}
	return ir.Text(v), true
}

// commitEdit is the selection engine's commit hook.
func (g *Grid) commitEdit(row, col int, value string) error {
	sc, ok := g.storeCol(col)
	if !ok {
		return fmt.Errorf("edit column %d: %w", col, rowstore.ErrIndexOutOfRange)
	}
	res, err := g.mut.Commit(row, sc, value)
	if err != nil {
		g.report(err)
		return err
	}
	slog.Debug("edit committed", "row", row, "col", sc, "decision", res.Decision.String())
	return nil
}

func (g *Grid) deleteRow(index int) error {
	res, err := g.mut.Delete(index)
	if err != nil {
		g.report(err)
		return err
	}
	slog.Debug("row deleted", "index", index, "decision", res.Decision.String())
	return nil
}

func (g *Grid) hideColumn(col int) error {
	sc, ok := g.storeCol(col)
	if !ok {
		return fmt.Errorf("hide column %d: %w", col, rowstore.ErrIndexOutOfRange)
	}
	column, _ := g.rows.Column(sc)
	g.hidden[column.Name] = true
	g.clearSelection()
	return nil
}

func (g *Grid) showColumns() {
	if len(g.hidden) == 0 {
		return
	}
	g.hidden = map[string]bool{}
	g.clearSelection()
}

// clearSelection drops the selection without committing; visible column
// indices have shifted under it.
func (g *Grid) clearSelection() {
	g.sel.Cancel()
	g.sel.CloseMenu()
	g.menu = nil
	_ = g.sel.Blur()
}
