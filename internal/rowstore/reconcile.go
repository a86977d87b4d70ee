package rowstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/gridsync/internal/ir"
)

// Rejection describes a mutation the remote store refused.
type Rejection struct {
	Action  ir.Action
	Key     ir.Value
	Message string
}

// Outcome reports what a reconciled frame did.
type Outcome struct {
	Action ir.Action

	// Rows is the number of rows written or removed.
	Rows int

	// Rejected is set for error frames.
	Rejected *Rejection
}

// Reconcile applies one inbound frame.
//
// The whole payload is decoded and validated before the store is touched;
// on error the store is unchanged. Unknown actions are ignored.
func (s *Store) Reconcile(f ir.Frame) (Outcome, error) {
	out := Outcome{Action: f.Action}

	switch f.Action {
	case ir.ActionGetTable:
		return out, s.reconcileSchema(f)

	case ir.ActionGetTableData:
		n, err := s.reconcileData(f)
		out.Rows = n
		return out, err

	case ir.ActionCreate:
		n, err := s.reconcileCreate(f)
		out.Rows = n
		return out, err

	case ir.ActionUpdate:
		n, err := s.reconcileUpdate(f)
		out.Rows = n
		return out, err

	case ir.ActionDelete:
		n, err := s.reconcileDelete(f)
		out.Rows = n
		return out, err

	case ir.ActionError:
		rej, err := s.reconcileError(f)
		out.Rejected = rej
		return out, err

	default:
		slog.Debug("ignoring frame", "action", f.Action)
		return out, nil
	}
}

func (s *Store) reconcileSchema(f ir.Frame) error {
	if len(f.Data) == 0 {
		return malformed(f.Action, "missing data", nil)
	}
	var payload ir.SchemaPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return malformed(f.Action, "data is not a schema object", err)
	}
	if payload.Schema == nil {
		return malformed(f.Action, "missing data.schema", nil)
	}
	if payload.Schema.Columns == nil {
		return malformed(f.Action, "missing data.schema.columns", nil)
	}
	return s.ApplySchema(payload.Schema.Columns, payload.Schema.AllConstraints())
}

func (s *Store) reconcileData(f ir.Frame) (int, error) {
	if len(f.Data) == 0 {
		return 0, malformed(f.Action, "missing data", nil)
	}
	var payload ir.DataPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return 0, malformed(f.Action, "data is not a row page", err)
	}
	if payload.Columns == nil {
		return 0, malformed(f.Action, "missing data.columns", nil)
	}
	if payload.Data == nil {
		return 0, malformed(f.Action, "missing data.data", nil)
	}

	rows := make([][]ir.Value, len(payload.Data))
	for i, raw := range payload.Data {
		cells, err := ir.DecodeRow(raw)
		if err != nil {
			return 0, malformed(f.Action, fmt.Sprintf("row %d", i), err)
		}
		rows[i] = cells
	}

	if err := s.ApplyRowSnapshot(payload.Columns, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// decodeObject decodes a {column: value} payload.
func decodeObject(action ir.Action, data json.RawMessage) (map[string]ir.Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(action, "data is not an object", err)
	}
	out := make(map[string]ir.Value, len(raw))
	for col, v := range raw {
		val, err := ir.DecodeValue(v)
		if err != nil {
			return nil, malformed(action, fmt.Sprintf("data.%s", col), err)
		}
		out[col] = val
	}
	return out, nil
}

func decodeKey(action ir.Action, raw json.RawMessage) (ir.Value, ir.Key, error) {
	if len(raw) == 0 {
		return nil, ir.NoKey, malformed(action, "missing key", nil)
	}
	val, err := ir.DecodeValue(raw)
	if err != nil {
		return nil, ir.NoKey, malformed(action, "key", err)
	}
	key, err := ir.KeyOf(val)
	if err != nil {
		return nil, ir.NoKey, malformed(action, "key", err)
	}
	if key.IsZero() {
		return nil, ir.NoKey, malformed(action, "null key", nil)
	}
	return val, key, nil
}

// reconcileCreate handles a create acknowledgement. The key comes from the
// key column of the echoed data. An unknown key appends a row (created by
// another client); a known key overwrites the echoed columns.
func (s *Store) reconcileCreate(f ir.Frame) (int, error) {
	if s.keyCol < 0 {
		return 0, malformed(f.Action, "no schema loaded", nil)
	}
	data, err := decodeObject(f.Action, f.Data)
	if err != nil {
		return 0, err
	}
	keyName := s.columns[s.keyCol].Name
	keyVal, ok := data[keyName]
	if !ok {
		if len(f.Key) == 0 {
			return 0, malformed(f.Action, "missing key column "+keyName, nil)
		}
		v, _, err := decodeKey(f.Action, f.Key)
		if err != nil {
			return 0, err
		}
		keyVal = v
	}
	key, err := ir.KeyOf(keyVal)
	if err != nil {
		return 0, malformed(f.Action, "key", err)
	}
	if key.IsZero() {
		return 0, malformed(f.Action, "null key", nil)
	}

	delete(s.pendingInserts, keyID(key))
	if _, deleting := s.pendingDeletes[keyID(key)]; deleting {
		return 0, nil
	}

	if idx := s.IndexOfKey(key); idx >= 0 {
		s.overwrite(idx, data)
		return 1, nil
	}

	cells := nullCells(len(s.columns))
	for col, v := range data {
		if i := s.ColumnIndex(col); i >= 0 {
			cells[i] = v
		}
	}
	cells[s.keyCol] = keyVal
	s.keySet[key] = struct{}{}
	s.rows = append(s.rows, ir.Row{Cells: cells})
	return 1, nil
}

// reconcileUpdate handles an update acknowledgement keyed by the row's key
// at dispatch time. Echoed data overwrites the named columns; a changed key
// cell re-keys the row.
func (s *Store) reconcileUpdate(f ir.Frame) (int, error) {
	_, key, err := decodeKey(f.Action, f.Key)
	if err != nil {
		return 0, err
	}
	data, err := decodeObject(f.Action, f.Data)
	if err != nil {
		return 0, err
	}

	newKey := key
	if s.keyCol >= 0 {
		if v, ok := data[s.columns[s.keyCol].Name]; ok {
			k, err := ir.KeyOf(v)
			if err != nil {
				return 0, malformed(f.Action, "new key", err)
			}
			newKey = k
		}
	}

	idx := s.IndexOfKey(key)
	if idx < 0 {
		idx = s.IndexOfKey(newKey)
	}
	if idx >= 0 && newKey != key && !newKey.IsZero() {
		if other := s.IndexOfKey(newKey); other >= 0 && other != idx {
			return 0, malformed(f.Action, "key collides with row "+newKey.String(), nil)
		}
	}

	delete(s.pendingUpdates, keyID(key))
	if idx < 0 || len(data) == 0 {
		return 0, nil
	}

	if old, _, err := s.KeyAt(idx); err == nil {
		delete(s.keySet, old)
	}
	s.overwrite(idx, data)
	if k, _, err := s.KeyAt(idx); err == nil && !k.IsZero() {
		s.keySet[k] = struct{}{}
	}
	return 1, nil
}

// reconcileDelete handles a delete acknowledgement. A row still holding
// the key (deleted by another client) is removed.
func (s *Store) reconcileDelete(f ir.Frame) (int, error) {
	_, key, err := decodeKey(f.Action, f.Key)
	if err != nil {
		return 0, err
	}

	delete(s.pendingDeletes, keyID(key))
	idx := s.IndexOfKey(key)
	if idx < 0 {
		return 0, nil
	}
	s.rows = slices.Delete(s.rows, idx, idx+1)
	delete(s.keySet, key)
	delete(s.pendingUpdates, keyID(key))
	return 1, nil
}

// reconcileError drops the pending entry of a rejected mutation. Local
// state is not rolled back.
func (s *Store) reconcileError(f ir.Frame) (*Rejection, error) {
	if len(f.Data) == 0 {
		return nil, malformed(f.Action, "missing data", nil)
	}
	var payload ir.ErrorPayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return nil, malformed(f.Action, "data is not an error object", err)
	}

	rej := &Rejection{Action: payload.Action, Message: payload.Message, Key: ir.Null{}}
	if len(payload.Key) > 0 {
		val, err := ir.DecodeValue(payload.Key)
		if err != nil {
			return nil, malformed(f.Action, "key", err)
		}
		rej.Key = val
		if key, err := ir.KeyOf(val); err == nil && !key.IsZero() {
			switch payload.Action {
			case ir.ActionCreate:
				delete(s.pendingInserts, keyID(key))
			case ir.ActionUpdate:
				delete(s.pendingUpdates, keyID(key))
			case ir.ActionDelete:
				delete(s.pendingDeletes, keyID(key))
			}
		}
	}
	return rej, nil
}

// overwrite writes data's known columns into the row at idx.
func (s *Store) overwrite(idx int, data map[string]ir.Value) {
	cells := ir.CloneCells(s.rows[idx].Cells)
	for col, v := range data {
		if i := s.ColumnIndex(col); i >= 0 && i < len(cells) {
			cells[i] = v
		}
	}
	s.rows[idx] = ir.Row{Cells: cells}
}
