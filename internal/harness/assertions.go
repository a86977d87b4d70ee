package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/selection"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Sent     []string // Outbound frames for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Sent) > 0 {
		fmt.Fprintf(&buf, "\nSent frames:\n")
		for i, frame := range e.Sent {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, frame)
		}
	}
	return buf.String()
}

// assertSentCount checks the number of outbound frames, optionally
// restricted to one action.
func assertSentCount(r *Result, a Assertion) error {
	count := 0
	for _, raw := range r.Sent {
		if a.Action == "" {
			count++
			continue
		}
		cmd, err := ir.DecodeCommand([]byte(raw))
		if err == nil && string(cmd.Action) == a.Action {
			count++
		}
	}

	if count != *a.Count {
		what := "frames"
		if a.Action != "" {
			what = a.Action + " frames"
		}
		return &AssertionError{
			Type:     AssertSentCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Sent:     r.Sent,
		}
	}
	return nil
}

// assertSentContains checks that an outbound frame equals the expected
// command. Both sides are compared in canonical form.
func assertSentContains(r *Result, a Assertion) error {
	cmd, err := ir.DecodeCommand([]byte(a.Command))
	if err != nil {
		return fmt.Errorf("sent_contains: %w", err)
	}
	want, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("sent_contains: %w", err)
	}

	for _, raw := range r.Sent {
		if raw == string(want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSentContains,
		Expected: string(want),
		Actual:   "not sent",
		Sent:     r.Sent,
	}
}

func assertRowCount(r *Result, a Assertion) error {
	if len(r.Rows) != *a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows", *a.Count),
			Actual:   fmt.Sprintf("%d rows", len(r.Rows)),
		}
	}
	return nil
}

// assertRow checks every visible cell of one row. Expected cells are YAML
// scalars; null matches a null cell.
func assertRow(r *Result, a Assertion) error {
	idx := *a.Index
	if idx < 0 || idx >= len(r.Rows) {
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("row %d", idx),
			Actual:   fmt.Sprintf("%d rows", len(r.Rows)),
		}
	}

	want := make([]ir.Value, len(a.Cells))
	for i, c := range a.Cells {
		v, err := ir.ValueFromAny(c)
		if err != nil {
			return fmt.Errorf("row: cells[%d]: %w", i, err)
		}
		want[i] = v
	}

	got := r.Rows[idx]
	if !cellsEqual(want, got) {
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("row %d = %s", idx, formatCells(want)),
			Actual:   fmt.Sprintf("row %d = %s", idx, formatCells(got)),
		}
	}
	return nil
}

func assertSelected(r *Result, a Assertion) error {
	row, col := *a.Row, *a.Col
	sel := r.Selection
	got := sel.Active && selection.Rect{Anchor: sel.Anchor, Floating: sel.Floating}.Contains(row, col)
	if got != expected(a) {
		return &AssertionError{
			Type:     AssertSelected,
			Expected: fmt.Sprintf("(%d,%d) selected=%t", row, col, expected(a)),
			Actual:   fmt.Sprintf("selected=%t", got),
		}
	}
	return nil
}

// assertEditing checks the edit cursor. Row, Col and Value narrow the
// check when set.
func assertEditing(r *Result, a Assertion) error {
	edit := r.Selection.Edit
	if !expected(a) {
		if edit != nil {
			return &AssertionError{
				Type:     AssertEditing,
				Expected: "not editing",
				Actual:   fmt.Sprintf("editing (%d,%d) staged %q", edit.Row, edit.Col, edit.Staged),
			}
		}
		return nil
	}

	if edit == nil {
		return &AssertionError{Type: AssertEditing, Expected: "editing", Actual: "not editing"}
	}
	if (a.Row != nil && *a.Row != edit.Row) || (a.Col != nil && *a.Col != edit.Col) {
		return &AssertionError{
			Type:     AssertEditing,
			Expected: fmt.Sprintf("editing (%s,%s)", optInt(a.Row), optInt(a.Col)),
			Actual:   fmt.Sprintf("editing (%d,%d)", edit.Row, edit.Col),
		}
	}
	if a.Value != nil && *a.Value != edit.Staged {
		return &AssertionError{
			Type:     AssertEditing,
			Expected: fmt.Sprintf("staged %q", *a.Value),
			Actual:   fmt.Sprintf("staged %q", edit.Staged),
		}
	}
	return nil
}

func assertPendingError(r *Result, a Assertion) error {
	has := r.PendingError != ""
	if has != expected(a) {
		return &AssertionError{
			Type:     AssertPendingError,
			Expected: fmt.Sprintf("pending error=%t", expected(a)),
			Actual:   fmt.Sprintf("pending error %q", r.PendingError),
		}
	}
	if has && a.Value != nil && !strings.Contains(r.PendingError, *a.Value) {
		return &AssertionError{
			Type:     AssertPendingError,
			Expected: fmt.Sprintf("pending error containing %q", *a.Value),
			Actual:   r.PendingError,
		}
	}
	return nil
}

func assertEquals(typ, want, got string) error {
	if want != got {
		return &AssertionError{Type: typ, Expected: fmt.Sprintf("%q", want), Actual: fmt.Sprintf("%q", got)}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertSentCount:
			err = assertSentCount(result, a)
		case AssertSentContains:
			err = assertSentContains(result, a)
		case AssertRowCount:
			err = assertRowCount(result, a)
		case AssertRow:
			err = assertRow(result, a)
		case AssertSelected:
			err = assertSelected(result, a)
		case AssertEditing:
			err = assertEditing(result, a)
		case AssertPendingError:
			err = assertPendingError(result, a)
		case AssertClipboard:
			err = assertEquals(AssertClipboard, *a.Value, result.Clipboard)
		case AssertState:
			err = assertEquals(AssertState, *a.Value, result.State)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func expected(a Assertion) bool {
	return a.Expect == nil || *a.Expect
}

func cellsEqual(a, b []ir.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ir.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func formatCells(cells []ir.Value) string {
	data, err := ir.MarshalCanonical(cells)
	if err != nil {
		return fmt.Sprintf("%v", cells)
	}
	return string(data)
}

func optInt(p *int) string {
	if p == nil {
		return "*"
	}
	return fmt.Sprint(*p)
}
