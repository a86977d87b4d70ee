package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action names a frame on the streaming connection.
type Action string

// Actions exchanged with the remote table store.
const (
	ActionGetTable     Action = "getTable"
	ActionGetTableData Action = "getTableData"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionError        Action = "error"
)

// Command is an outbound frame.
//
// Only the fields relevant to Action are encoded:
//   - getTableData: Begin, End
//   - create: Data
//   - update: Key, Data
//   - delete: Key
type Command struct {
	Action Action
	Begin  int
	End    int
	Key    Value
	Data   map[string]Value
}

// GetTable builds the schema request.
func GetTable() Command {
	return Command{Action: ActionGetTable}
}

// GetTableData builds a bounded row range request.
func GetTableData(begin, end int) Command {
	return Command{Action: ActionGetTableData, Begin: begin, End: end}
}

// Create builds a create command carrying a full row keyed by column name.
func Create(data map[string]Value) Command {
	return Command{Action: ActionCreate, Data: data}
}

// Update builds an update command for the row identified by key.
func Update(key Value, data map[string]Value) Command {
	return Command{Action: ActionUpdate, Key: key, Data: data}
}

// Delete builds a delete command for the row identified by key.
func Delete(key Value) Command {
	return Command{Action: ActionDelete, Key: key}
}

// toObject returns the command as a generic object for canonical encoding.
func (c Command) toObject() map[string]any {
	obj := map[string]any{"action": string(c.Action)}
	switch c.Action {
	case ActionGetTableData:
		obj["begin"] = c.Begin
		obj["end"] = c.End
	case ActionCreate:
		obj["data"] = dataObject(c.Data)
	case ActionUpdate:
		obj["key"] = valueOrNull(c.Key)
		obj["data"] = dataObject(c.Data)
	case ActionDelete:
		obj["key"] = valueOrNull(c.Key)
	}
	return obj
}

func dataObject(data map[string]Value) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = valueOrNull(v)
	}
	return out
}

func valueOrNull(v Value) any {
	if v == nil {
		return Null{}
	}
	return v
}

// Encode serializes the command to its canonical wire form.
func (c Command) Encode() ([]byte, error) {
	if c.Action == "" {
		return nil, fmt.Errorf("encode command: action is required")
	}
	data, err := MarshalWire(c.toObject())
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Action, err)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler using the canonical wire form.
func (c Command) MarshalJSON() ([]byte, error) {
	return c.Encode()
}

// DecodeCommand parses an outbound frame. Used by test servers and the
// journal reader.
func DecodeCommand(data []byte) (Command, error) {
	var raw struct {
		Action Action                     `json:"action"`
		Begin  int                        `json:"begin"`
		End    int                        `json:"end"`
		Key    json.RawMessage            `json:"key"`
		Data   map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if raw.Action == "" {
		return Command{}, fmt.Errorf("decode command: missing action")
	}

	cmd := Command{Action: raw.Action, Begin: raw.Begin, End: raw.End}
	if len(raw.Key) > 0 {
		key, err := DecodeValue(raw.Key)
		if err != nil {
			return Command{}, fmt.Errorf("decode command key: %w", err)
		}
		cmd.Key = key
	}
	if raw.Data != nil {
		cmd.Data = make(map[string]Value, len(raw.Data))
		for col, v := range raw.Data {
			val, err := DecodeValue(v)
			if err != nil {
				return Command{}, fmt.Errorf("decode command data %q: %w", col, err)
			}
			cmd.Data[col] = val
		}
	}
	return cmd, nil
}

// Frame is an inbound frame, decoded only as far as its envelope.
// Payload parsing belongs to the reconciler so a malformed payload can be
// rejected before anything is applied.
type Frame struct {
	Action Action          `json:"action"`
	Key    json.RawMessage `json:"key,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses the envelope of an inbound frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Action == "" {
		return Frame{}, fmt.Errorf("decode frame: missing action")
	}
	return f, nil
}

// Encode serializes the frame envelope. Used by test servers.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// SchemaPayload is the data of a getTable frame.
type SchemaPayload struct {
	Schema *TableSchema `json:"schema"`
}

// DataPayload is the data of a getTableData frame.
// Rows stay raw until the reconciler validates their width.
type DataPayload struct {
	Columns []string          `json:"columns"`
	Data    []json.RawMessage `json:"data"`
}

// ErrorPayload is the data of an error frame: the remote store rejected a
// dispatched command.
type ErrorPayload struct {
	Action  Action          `json:"action"`
	Key     json.RawMessage `json:"key,omitempty"`
	Message string          `json:"message"`
}
