// Package mutation decides, for every committed edit, whether the change
// stays local or is dispatched to the remote store.
//
// DECISION TABLE:
//
//	row has key | edited column is key | action
//	------------+----------------------+-----------------------------------
//	yes         | any                  | stage, dispatch update (edited column only)
//	no          | no                   | stage, buffer locally
//	no          | yes                  | stage, dispatch create (full row), promote
//
// All changes are optimistic. A send failure or a later error frame leaves
// the local change in place.
package mutation

import (
	"fmt"
	"log/slog"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/rowstore"
)

// Sender writes commands to the remote store. conn.Manager implements it.
type Sender interface {
	Send(cmd ir.Command) error
}

// Decision is the branch of the decision table a mutation took.
type Decision int

const (
	// DecisionBuffer keeps the change local; nothing is sent.
	DecisionBuffer Decision = iota + 1
	// DecisionUpdate sends an update keyed by the row's existing key.
	DecisionUpdate
	// DecisionCreate sends a create carrying the full row.
	DecisionCreate
	// DecisionDelete sends a delete keyed by the captured key.
	DecisionDelete
)

func (d Decision) String() string {
	switch d {
	case DecisionBuffer:
		return "buffer"
	case DecisionUpdate:
		return "update"
	case DecisionCreate:
		return "create"
	case DecisionDelete:
		return "delete"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Result describes a committed mutation.
type Result struct {
	Decision Decision

	// Command is the dispatched command, nil when buffered.
	Command *ir.Command

	// Key is the row's key after the mutation, if any.
	Key ir.Key
}

// Coordinator applies committed edits to a row store and dispatches the
// resulting commands. It is not safe for concurrent use; the grid's event
// loop serializes calls.
type Coordinator struct {
	store  *rowstore.Store
	sender Sender
}

// New creates a coordinator over store that dispatches through sender.
func New(store *rowstore.Store, sender Sender) *Coordinator {
	return &Coordinator{store: store, sender: sender}
}

// Commit applies edited text to (row, col) following the decision table.
func (c *Coordinator) Commit(row, col int, input string) (Result, error) {
	column, ok := c.store.Column(col)
	if !ok {
		return Result{}, fmt.Errorf("commit column %d: %w", col, rowstore.ErrIndexOutOfRange)
	}
	value := Encode(column.DataType, input)

	key, keyCell, err := c.store.KeyAt(row)
	if err != nil {
		return Result{}, fmt.Errorf("commit row %d: %w", row, err)
	}

	if !key.IsZero() {
		if err := c.store.LocalUpdateCell(row, col, value); err != nil {
			return Result{}, err
		}
		cmd := ir.Update(keyCell, map[string]ir.Value{column.Name: value})
		res := Result{Decision: DecisionUpdate, Command: &cmd}
		res.Key, _, _ = c.store.KeyAt(row)
		return res, c.dispatch(cmd)
	}

	if err := c.store.LocalUpdateCell(row, col, value); err != nil {
		return Result{}, err
	}

	r, _ := c.store.Row(row)
	if col != c.store.KeyColumn() || !r.IsVirtual() || ir.IsNull(value) {
		slog.Debug("edit buffered", "row", row, "column", column.Name)
		return Result{Decision: DecisionBuffer}, nil
	}

	return c.create(row, value)
}

// create dispatches the full row of a virtual row whose key cell was just
// set, then promotes it. A failed send leaves the row virtual so committing
// the key again retries.
func (c *Coordinator) create(row int, keyValue ir.Value) (Result, error) {
	newKey, err := ir.KeyOf(keyValue)
	if err != nil {
		return Result{Decision: DecisionBuffer}, fmt.Errorf("commit key: %w", err)
	}
	if c.store.HasKey(newKey) {
		return Result{Decision: DecisionBuffer}, fmt.Errorf("commit key %s: %w", newKey.String(), rowstore.ErrDuplicateKey)
	}

	r, _ := c.store.Row(row)
	cols := c.store.Columns()
	data := make(map[string]ir.Value, len(cols))
	for i, col := range cols {
		data[col.Name] = EncodeValue(col.DataType, r.Cells[i])
	}
	cmd := ir.Create(data)
	res := Result{Decision: DecisionCreate, Command: &cmd}

	if err := c.dispatch(cmd); err != nil {
		return res, err
	}

	key, err := c.store.PromoteVirtual(row, keyValue)
	if err != nil {
		return res, err
	}
	res.Key = key
	return res, nil
}

// Delete removes the row at index. The key is captured before the local
// delete; a virtual row is removed without dispatch.
func (c *Coordinator) Delete(index int) (Result, error) {
	key, keyCell, err := c.store.KeyAt(index)
	if err != nil {
		return Result{}, fmt.Errorf("delete row %d: %w", index, err)
	}

	if _, err := c.store.LocalDeleteRow(index); err != nil {
		return Result{}, err
	}
	if key.IsZero() {
		slog.Debug("keyless row removed locally", "index", index)
		return Result{Decision: DecisionBuffer}, nil
	}

	cmd := ir.Delete(keyCell)
	return Result{Decision: DecisionDelete, Command: &cmd, Key: key}, c.dispatch(cmd)
}

// AddRow inserts a virtual row after index and returns its position.
func (c *Coordinator) AddRow(after int) int {
	idx, _ := c.store.LocalInsertVirtualRow(after)
	return idx
}

// Duplicate inserts a virtual copy of the row at index directly below it.
// The key cell is left null; the copy is buffered until a key is entered.
func (c *Coordinator) Duplicate(index int) (int, error) {
	src, ok := c.store.Row(index)
	if !ok {
		return 0, fmt.Errorf("duplicate row %d: %w", index, rowstore.ErrIndexOutOfRange)
	}
	idx, _ := c.store.LocalInsertVirtualRow(index)
	keyCol := c.store.KeyColumn()
	for col, v := range src.Cells {
		if col == keyCol || ir.IsNull(v) {
			continue
		}
		if err := c.store.LocalUpdateCell(idx, col, v); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// dispatch sends cmd. Errors are logged and returned; the local change is
// not rolled back.
func (c *Coordinator) dispatch(cmd ir.Command) error {
	if err := c.sender.Send(cmd); err != nil {
		slog.Warn("dispatch failed", "action", cmd.Action, "error", err)
		return fmt.Errorf("dispatch %s: %w", cmd.Action, err)
	}
	return nil
}
