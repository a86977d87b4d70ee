package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
)

// Direction says which way a frame crossed the connection.
type Direction string

const (
	// Inbound frames were received from the remote store.
	Inbound Direction = "in"
	// Outbound frames are commands the grid sent.
	Outbound Direction = "out"
)

// Record is one journaled frame.
type Record struct {
	Session   string          `json:"session"`
	Seq       int64           `json:"seq"`
	Direction Direction       `json:"direction"`
	Action    ir.Action       `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

// Session summarizes one journaled session.
type Session struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Frames   int    `json:"frames"`
	LastSeq  int64  `json:"lastSeq"`
}

// InboundRecord builds the record of a received frame.
func InboundRecord(session string, seq int64, f ir.Frame) (Record, error) {
	payload, err := f.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("journal inbound %s: %w", f.Action, err)
	}
	return Record{Session: session, Seq: seq, Direction: Inbound, Action: f.Action, Payload: payload}, nil
}

// OutboundRecord builds the record of a sent command. The payload is the
// command's canonical wire form.
func OutboundRecord(session string, seq int64, cmd ir.Command) (Record, error) {
	payload, err := cmd.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("journal outbound %s: %w", cmd.Action, err)
	}
	return Record{Session: session, Seq: seq, Direction: Outbound, Action: cmd.Action, Payload: payload}, nil
}

func (d Direction) valid() bool {
	return d == Inbound || d == Outbound
}
