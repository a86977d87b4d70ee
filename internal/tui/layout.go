package tui

import (
	"strconv"

	"github.com/mattn/go-runewidth"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/selection"
)

// Screen rows of the table. The title is line 0.
const (
	headerLine = 1
	bodyTop    = 3

	minColWidth = 4
	maxColWidth = 24

	// chrome is the title, header, separator, status and help lines.
	chrome = 5
)

// layout maps screen cells to grid coordinates for one frame. It is
// rebuilt from the grid on every update and render.
type layout struct {
	indexWidth int
	widths     []int

	firstCol int
	lastCol  int // exclusive

	firstRow int
	bodyRows int
	rowCount int
}

func computeLayout(cols []ir.Column, rows []ir.Row, width, height, scrollX, scrollY, extra int) layout {
	l := layout{
		indexWidth: max(len(strconv.Itoa(len(rows)))+2, 4),
		widths:     columnWidths(cols, rows),
		rowCount:   len(rows),
	}

	l.firstCol = min(max(scrollX, 0), max(len(cols)-1, 0))
	l.lastCol = len(cols)
	if width > 0 {
		used := l.indexWidth + 1
		l.lastCol = l.firstCol
		for l.lastCol < len(cols) {
			w := l.widths[l.lastCol] + 3
			if used+w > width && l.lastCol > l.firstCol {
				break
			}
			used += w
			l.lastCol++
		}
	}

	visible := len(rows)
	if height > 0 {
		visible = max(height-chrome-extra, 1)
	}
	l.firstRow = min(max(scrollY, 0), max(len(rows)-1, 0))
	l.bodyRows = min(visible, len(rows)-l.firstRow)
	return l
}

// columnWidths sizes each column to its header and widest sampled cell.
func columnWidths(cols []ir.Column, rows []ir.Row) []int {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = runewidth.StringWidth(c.Name) + 1
	}
	sample := rows
	if len(sample) > 200 {
		sample = sample[:200]
	}
	for _, r := range sample {
		for i := range cols {
			if i < len(r.Cells) {
				widths[i] = max(widths[i], runewidth.StringWidth(ir.Text(r.Cells[i])))
			}
		}
	}
	for i := range widths {
		widths[i] = min(max(widths[i], minColWidth), maxColWidth)
	}
	return widths
}

// hitTest resolves a press at screen cell (x, y). The header line yields
// an unbounded row and the index column an unbounded col.
func (l layout) hitTest(x, y int) (selection.Coord, bool) {
	var row selection.Axis
	switch {
	case y == headerLine:
		row = selection.Unbounded
	case y >= bodyTop && y < bodyTop+l.bodyRows:
		row = selection.At(l.firstRow + y - bodyTop)
	default:
		return selection.Coord{}, false
	}

	col, ok := l.column(x)
	if !ok {
		return selection.Coord{}, false
	}
	return selection.Coord{Row: row, Col: col}, true
}

// dragTarget resolves a pointer position during a drag, clamping to the
// rendered body so the rectangle follows the pointer past the edges.
func (l layout) dragTarget(x, y int) (selection.Coord, bool) {
	if y == headerLine {
		if col, ok := l.column(x); ok {
			return selection.Coord{Row: selection.Unbounded, Col: col}, true
		}
		return selection.Coord{}, false
	}
	if l.bodyRows == 0 || l.lastCol <= l.firstCol {
		return selection.Coord{}, false
	}
	row := min(max(y-bodyTop, 0), l.bodyRows-1) + l.firstRow

	col, ok := l.column(x)
	if !ok {
		col = selection.At(l.lastCol - 1)
	}
	return selection.Coord{Row: selection.At(row), Col: col}, true
}

func (l layout) column(x int) (selection.Axis, bool) {
	if x < 0 {
		return selection.Axis{}, false
	}
	if x <= l.indexWidth {
		return selection.Unbounded, true
	}
	x -= l.indexWidth + 1
	for c := l.firstCol; c < l.lastCol; c++ {
		w := l.widths[c] + 3
		if x < w {
			return selection.At(c), true
		}
		x -= w
	}
	return selection.Axis{}, false
}

// fit pads or truncates s to exactly w display cells.
func fit(s string, w int) string {
	if runewidth.StringWidth(s) > w {
		s = runewidth.Truncate(s, w, "…")
	}
	return runewidth.FillRight(s, w)
}
