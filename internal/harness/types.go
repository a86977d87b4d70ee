package harness

import (
	"encoding/json"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/selection"
)

// TraceEvent is one journaled frame of a scenario run.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	Direction string          `json:"direction"` // "in" or "out"
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every frame in both directions, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Sent holds the raw outbound frames as written to the socket.
	Sent []string `json:"sent"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Final grid state, captured after the last step.
	Columns      []string           `json:"columns"`
	Rows         [][]ir.Value       `json:"-"`
	Selection    selection.Snapshot `json:"-"`
	PendingError string             `json:"pending_error,omitempty"`
	Clipboard    string             `json:"clipboard,omitempty"`
	State        string             `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Sent:   []string{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outbound returns the outbound trace events.
func (r *Result) Outbound() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Direction == "out" {
			out = append(out, ev)
		}
	}
	return out
}
