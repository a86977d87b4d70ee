package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gridsync/internal/ir"
)

// TraceSnapshot captures the trace and final rows of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Columns      []string
	Rows         [][]ir.Value
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Payloads are re-encoded so key order never matters.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = map[string]any{
			"seq":       event.Seq,
			"direction": event.Direction,
			"action":    event.Action,
			"payload":   ir.Raw(event.Payload),
		}
	}

	columns := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		columns[i] = c
	}
	rows := make([]any, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = r
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"columns":       columns,
		"rows":          rows,
	}
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Columns:      result.Columns,
		Rows:         result.Rows,
	}
}

// Marshal returns the canonical JSON form stored in golden files.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can inspect failures; a trace mismatch
// fails the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
