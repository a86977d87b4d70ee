// Package menu routes context-menu requests to one of three disjoint menus
// and dispatches the chosen item.
package menu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/gridsync/internal/selection"
)

// Kind identifies a menu.
type Kind int

const (
	KindRow Kind = iota + 1
	KindColumn
	KindCell
)

func (k Kind) String() string {
	switch k {
	case KindRow:
		return "row"
	case KindColumn:
		return "column"
	case KindCell:
		return "cell"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Item is a menu entry.
type Item string

const (
	AddRow       Item = "Add Row"
	DuplicateRow Item = "Duplicate Row"
	DeleteRow    Item = "Delete Row"
	Sort         Item = "Sort"
	Filter       Item = "Filter"
	Expand       Item = "Expand"
	Hide         Item = "Hide"
	Cut          Item = "Cut"
	Copy         Item = "Copy"
	Paste        Item = "Paste"
)

var (
	// ErrUnsupported is returned for items the grid does not implement.
	ErrUnsupported = errors.New("menu item not supported")

	// ErrNotInMenu is returned when an item is chosen from a menu that does
	// not contain it.
	ErrNotInMenu = errors.New("item not in menu")

	// ErrNoTarget is returned when a row item targets the header row.
	ErrNoTarget = errors.New("no row under target")
)

var items = map[Kind][]Item{
	KindRow:    {AddRow, DuplicateRow, DeleteRow, Cut, Copy, Paste},
	KindColumn: {Sort, Filter, Expand, Hide, Cut, Copy, Paste},
	KindCell:   {Cut, Copy, Paste},
}

// Route picks the menu for target. The index column (unbounded col) wins
// over the header row, so the corner opens the row menu.
func Route(target selection.Coord) Kind {
	switch {
	case !target.Col.IsBounded():
		return KindRow
	case !target.Row.IsBounded():
		return KindColumn
	default:
		return KindCell
	}
}

// Items returns the entries of a menu in display order.
func Items(k Kind) []Item {
	return slices.Clone(items[k])
}

// Menu is an open context menu.
type Menu struct {
	Kind   Kind
	Target selection.Coord
	Items  []Item
}

// Open builds the menu for target.
func Open(target selection.Coord) Menu {
	k := Route(target)
	return Menu{Kind: k, Target: target, Items: Items(k)}
}

// Has reports whether the menu contains item.
func (m Menu) Has(item Item) bool {
	return slices.Contains(m.Items, item)
}
