package menu

import (
	"fmt"
	"log/slog"

	"github.com/roach88/gridsync/internal/selection"
)

// Actions is the grid surface menu items act on.
type Actions interface {
	AddRow(after int) error
	DuplicateRow(index int) error
	DeleteRow(index int) error
	HideColumn(col int) error
	ShowColumns()

	// SelectionText returns the selected cells as clipboard text.
	SelectionText() (string, bool)
	// ClearSelection writes empty values into the selected cells.
	ClearSelection() error
	// PasteText writes clipboard text starting at the top-left of the
	// selection, or at at when nothing is selected.
	PasteText(at selection.Coord, text string) error
}

// Clipboard reads and writes plain text.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Dispatch runs item against the menu routed from target.
func Dispatch(target selection.Coord, item Item, a Actions, clip Clipboard) error {
	m := Open(target)
	if !m.Has(item) {
		return fmt.Errorf("%s menu: %q: %w", m.Kind, item, ErrNotInMenu)
	}
	slog.Debug("menu item", "menu", m.Kind.String(), "item", string(item), "target", target.String())

	switch item {
	case AddRow:
		after := -1
		if row, ok := target.Row.Index(); ok {
			after = row
		}
		return a.AddRow(after)

	case DuplicateRow:
		row, ok := target.Row.Index()
		if !ok {
			return fmt.Errorf("%s: %w", item, ErrNoTarget)
		}
		return a.DuplicateRow(row)

	case DeleteRow:
		row, ok := target.Row.Index()
		if !ok {
			return fmt.Errorf("%s: %w", item, ErrNoTarget)
		}
		return a.DeleteRow(row)

	case Hide:
		col, _ := target.Col.Index()
		return a.HideColumn(col)

	case Expand:
		a.ShowColumns()
		return nil

	case Copy, Cut:
		text, ok := a.SelectionText()
		if !ok {
			return nil
		}
		if clip == nil {
			return fmt.Errorf("%s: no clipboard", item)
		}
		if err := clip.WriteAll(text); err != nil {
			return fmt.Errorf("%s: %w", item, err)
		}
		if item == Cut {
			return a.ClearSelection()
		}
		return nil

	case Paste:
		if clip == nil {
			return fmt.Errorf("%s: no clipboard", item)
		}
		text, err := clip.ReadAll()
		if err != nil {
			return fmt.Errorf("%s: %w", item, err)
		}
		return a.PasteText(target, text)

	default:
		return fmt.Errorf("%s: %w", item, ErrUnsupported)
	}
}
