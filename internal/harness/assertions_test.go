package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/selection"
)

func intp(n int) *int       { return &n }
func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func sampleResult() *Result {
	r := NewResult()
	r.Sent = []string{
		`{"action":"update","data":{"name":"robert"},"key":2}`,
		`{"action":"delete","key":3}`,
	}
	r.Columns = []string{"id", "name"}
	r.Rows = [][]ir.Value{
		{ir.Int(1), ir.String("ann")},
		{ir.Int(2), ir.String("robert")},
		{ir.Int(4), ir.Null{}},
	}
	r.Selection = selection.Snapshot{
		Active:   true,
		Anchor:   selection.Cell(0, 0),
		Floating: selection.Cell(1, 1),
		Frozen:   true,
		Edit:     &selection.Edit{Row: 1, Col: 1, Staged: "rob", Original: "robert"},
	}
	r.State = "connected"
	r.Clipboard = "1\tann"
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertSentCount, Count: intp(2)},
		{Type: AssertSentCount, Action: "delete", Count: intp(1)},
		{Type: AssertSentContains, Command: `{"key":2,"data":{"name":"robert"},"action":"update"}`},
		{Type: AssertRowCount, Count: intp(3)},
		{Type: AssertRow, Index: intp(1), Cells: []any{2, "robert"}},
		{Type: AssertRow, Index: intp(2), Cells: []any{4, nil}},
		{Type: AssertSelected, Row: intp(1), Col: intp(0)},
		{Type: AssertSelected, Row: intp(2), Col: intp(0), Expect: boolp(false)},
		{Type: AssertEditing, Row: intp(1), Col: intp(1), Value: strp("rob")},
		{Type: AssertPendingError, Expect: boolp(false)},
		{Type: AssertClipboard, Value: strp("1\tann")},
		{Type: AssertState, Value: strp("connected")},
	}

	assert.Empty(t, EvaluateAssertions(sampleResult(), assertions))
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"sent count", Assertion{Type: AssertSentCount, Count: intp(5)}, "5 frames"},
		{"sent contains", Assertion{Type: AssertSentContains, Command: `{"action":"delete","key":9}`}, "not sent"},
		{"row count", Assertion{Type: AssertRowCount, Count: intp(1)}, "3 rows"},
		{"row cells", Assertion{Type: AssertRow, Index: intp(0), Cells: []any{1, "bob"}}, `[1,"ann"]`},
		{"row type", Assertion{Type: AssertRow, Index: intp(0), Cells: []any{"1", "ann"}}, "row 0"},
		{"row range", Assertion{Type: AssertRow, Index: intp(7), Cells: []any{}}, "row 7"},
		{"selected", Assertion{Type: AssertSelected, Row: intp(2), Col: intp(1)}, "selected=false"},
		{"not editing", Assertion{Type: AssertEditing, Expect: boolp(false)}, "not editing"},
		{"editing cell", Assertion{Type: AssertEditing, Row: intp(0)}, "editing (1,1)"},
		{"staged", Assertion{Type: AssertEditing, Value: strp("robert")}, `staged "rob"`},
		{"pending", Assertion{Type: AssertPendingError}, "pending error=true"},
		{"clipboard", Assertion{Type: AssertClipboard, Value: strp("")}, `"1\tann"`},
		{"state", Assertion{Type: AssertState, Value: strp("disconnected")}, `"connected"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if assert.Len(t, errs, 1) {
				assert.Contains(t, errs[0], tt.want)
			}
		})
	}
}

func TestAssertPendingError_Substring(t *testing.T) {
	r := sampleResult()
	r.PendingError = "schema: ambiguous key"

	assert.Empty(t, EvaluateAssertions(r, []Assertion{{Type: AssertPendingError, Value: strp("ambiguous")}}))
	errs := EvaluateAssertions(r, []Assertion{{Type: AssertPendingError, Value: strp("lost")}})
	assert.Len(t, errs, 1)
}

func TestAssertionError_ListsSentFrames(t *testing.T) {
	err := &AssertionError{
		Type:     AssertSentCount,
		Expected: "1 frames",
		Actual:   "2 frames",
		Sent:     []string{`{"action":"getTable"}`},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: sent_count")
	assert.Contains(t, msg, `[1] {"action":"getTable"}`)
}
