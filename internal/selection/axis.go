package selection

import (
	"fmt"
	"strconv"
)

// Axis is one coordinate of a grid position: either a concrete index or
// Unbounded, which addresses a whole row or column (the header row has an
// unbounded row, the index column an unbounded col).
//
// The zero Axis is Unbounded.
type Axis struct {
	value   int
	bounded bool
}

// Unbounded addresses every index on its axis.
var Unbounded = Axis{}

// At returns a bounded axis. Negative indices are clamped to zero.
func At(n int) Axis {
	if n < 0 {
		n = 0
	}
	return Axis{value: n, bounded: true}
}

// IsBounded reports whether the axis holds a concrete index.
func (a Axis) IsBounded() bool {
	return a.bounded
}

// Index returns the concrete index and whether the axis is bounded.
func (a Axis) Index() (int, bool) {
	return a.value, a.bounded
}

// String renders the axis as its index or "*".
func (a Axis) String() string {
	if !a.bounded {
		return "*"
	}
	return strconv.Itoa(a.value)
}

// lower maps Unbounded to the first index.
func (a Axis) lower() Axis {
	if !a.bounded {
		return At(0)
	}
	return a
}

// less orders bounded indices before Unbounded, which acts as the maximum.
func (a Axis) less(b Axis) bool {
	switch {
	case !a.bounded:
		return false
	case !b.bounded:
		return true
	default:
		return a.value < b.value
	}
}

// contains reports whether n lies in the inclusive span between a and b.
func contains(a, b Axis, n int) bool {
	lo, hi := a, b
	if hi.less(lo) {
		lo, hi = hi, lo
	}
	if lo.bounded && n < lo.value {
		return false
	}
	if hi.bounded && n > hi.value {
		return false
	}
	return true
}

// Coord is a grid position.
type Coord struct {
	Row Axis
	Col Axis
}

// Cell returns the coordinate of a body cell.
func Cell(row, col int) Coord {
	return Coord{Row: At(row), Col: At(col)}
}

// String renders the coordinate as "(row,col)".
func (c Coord) String() string {
	return fmt.Sprintf("(%s,%s)", c.Row, c.Col)
}

// IsBody reports whether both axes are bounded.
func (c Coord) IsBody() bool {
	return c.Row.bounded && c.Col.bounded
}

// lowerBound normalizes c for use as the anchor corner.
func (c Coord) lowerBound() Coord {
	return Coord{Row: c.Row.lower(), Col: c.Col.lower()}
}

// upperBound normalizes c for use as the floating corner. Unbounded axes
// stay unbounded and span to the last index.
func (c Coord) upperBound() Coord {
	return c
}

// Rect is a selection rectangle given by two corners in any order.
type Rect struct {
	Anchor   Coord
	Floating Coord
}

// Contains reports whether (row, col) lies inside the rectangle, inclusive.
func (r Rect) Contains(row, col int) bool {
	return contains(r.Anchor.Row, r.Floating.Row, row) &&
		contains(r.Anchor.Col, r.Floating.Col, col)
}

// Bounds resolves the rectangle against a table size and returns the
// inclusive top-left and bottom-right body cells. ok is false when the
// rectangle lies entirely outside the table.
func (r Rect) Bounds(rowCount, colCount int) (top, left, bottom, right int, ok bool) {
	top, bottom, rowsOK := span(r.Anchor.Row, r.Floating.Row, rowCount)
	left, right, colsOK := span(r.Anchor.Col, r.Floating.Col, colCount)
	return top, left, bottom, right, rowsOK && colsOK
}

func span(a, b Axis, count int) (int, int, bool) {
	if count <= 0 {
		return 0, 0, false
	}
	lo, hi := a, b
	if hi.less(lo) {
		lo, hi = hi, lo
	}
	first := 0
	if lo.bounded {
		first = lo.value
	}
	last := count - 1
	if hi.bounded && hi.value < last {
		last = hi.value
	}
	if first > last {
		return 0, 0, false
	}
	return first, last, true
}
