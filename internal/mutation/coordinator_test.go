package mutation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/rowstore"
)

type recordingSender struct {
	sent []ir.Command
	err  error
}

func (s *recordingSender) Send(cmd ir.Command) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func strp(s string) *string { return &s }

// newTable loads id(integer, key), name(string), age(integer) with rows
// keyed 1 and 2.
func newTable(t *testing.T) (*rowstore.Store, *recordingSender, *Coordinator) {
	t.Helper()
	store := rowstore.New()
	require.NoError(t, store.ApplySchema(
		[]ir.ColumnSchema{{Name: "id", DataType: "integer"}, {Name: "name", DataType: "string"}, {Name: "age", DataType: "integer"}},
		[]ir.Constraint{{Key: strp("id")}},
	))
	require.NoError(t, store.ApplyRowSnapshot([]string{"id", "name", "age"}, [][]ir.Value{
		{ir.Int(1), ir.String("ann"), ir.Int(30)},
		{ir.Int(2), ir.String("bob"), ir.Null{}},
	}))
	sender := &recordingSender{}
	return store, sender, New(store, sender)
}

func TestCommit_KeyedRowDispatchesUpdate(t *testing.T) {
	store, sender, c := newTable(t)

	res, err := c.Commit(1, 2, "41")
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdate, res.Decision)

	require.Len(t, sender.sent, 1)
	data, err := sender.sent[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"action":"update","data":{"age":41},"key":2}`, string(data))

	v, _ := store.Cell(1, 2)
	assert.Equal(t, ir.Int(41), v)
}

func TestCommit_StringKeySentVerbatim(t *testing.T) {
	store := rowstore.New()
	require.NoError(t, store.ApplySchema(
		[]ir.ColumnSchema{{Name: "id", DataType: "string"}, {Name: "name", DataType: "string"}},
		[]ir.Constraint{{Key: strp("id")}},
	))
	require.NoError(t, store.ApplyRowSnapshot([]string{"id", "name"}, [][]ir.Value{
		{ir.String("cafe\u0301"), ir.String("x")},
	}))
	sender := &recordingSender{}
	c := New(store, sender)

	_, err := c.Commit(0, 1, "we\u0301")
	require.NoError(t, err)
	_, err = c.Delete(0)
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	update, err := sender.sent[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, "{\"action\":\"update\",\"data\":{\"name\":\"we\u0301\"},\"key\":\"cafe\u0301\"}", string(update))
	del, err := sender.sent[1].Encode()
	require.NoError(t, err)
	assert.Equal(t, "{\"action\":\"delete\",\"key\":\"cafe\u0301\"}", string(del))
}

func TestCommit_ClearingKeyOfKeyedRowIsRejected(t *testing.T) {
	store, sender, c := newTable(t)

	_, err := c.Commit(0, 0, "")
	require.ErrorIs(t, err, rowstore.ErrKeyRequired)
	assert.Empty(t, sender.sent)

	// The row keeps its key, so later edits still dispatch updates.
	res, err := c.Commit(0, 1, "anna")
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdate, res.Decision)
	v, _ := store.Cell(0, 0)
	assert.Equal(t, ir.Int(1), v)
}

func TestCommit_UnparsableIntegerBecomesNull(t *testing.T) {
	_, sender, c := newTable(t)

	_, err := c.Commit(0, 2, "forty")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ir.Null{}, sender.sent[0].Data["age"])
}

func TestCommit_VirtualRowNonKeyEditIsBuffered(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(1)

	res, err := c.Commit(idx, 1, "carl")
	require.NoError(t, err)
	assert.Equal(t, DecisionBuffer, res.Decision)
	assert.Empty(t, sender.sent)

	v, _ := store.Cell(idx, 1)
	assert.Equal(t, ir.String("carl"), v)
}

func TestCommit_VirtualRowKeyEditDispatchesCreate(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(1)
	_, err := c.Commit(idx, 1, "carl")
	require.NoError(t, err)
	_, err = c.Commit(idx, 2, "27")
	require.NoError(t, err)
	require.Empty(t, sender.sent)

	res, err := c.Commit(idx, 0, "42")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision)
	assert.Equal(t, ir.MustKeyOf(ir.Int(42)), res.Key)

	require.Len(t, sender.sent, 1)
	data, err := sender.sent[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"action":"create","data":{"age":27,"id":42,"name":"carl"}}`, string(data))

	r, _ := store.Row(idx)
	assert.False(t, r.IsVirtual())
	key, _, err := store.KeyAt(idx)
	require.NoError(t, err)
	assert.Equal(t, ir.MustKeyOf(ir.Int(42)), key)
}

func TestCommit_CreateSendsEveryColumn(t *testing.T) {
	_, sender, c := newTable(t)
	idx := c.AddRow(-1)

	_, err := c.Commit(idx, 0, "42")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, map[string]ir.Value{
		"id":   ir.Int(42),
		"name": ir.Null{},
		"age":  ir.Null{},
	}, sender.sent[0].Data)
}

func TestCommit_NullKeyIsBuffered(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(1)

	res, err := c.Commit(idx, 0, "not a number")
	require.NoError(t, err)
	assert.Equal(t, DecisionBuffer, res.Decision)
	assert.Empty(t, sender.sent)

	r, _ := store.Row(idx)
	assert.True(t, r.IsVirtual())
}

func TestCommit_DuplicateKeyIsRejectedLocally(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(1)

	_, err := c.Commit(idx, 0, "1")
	assert.ErrorIs(t, err, rowstore.ErrDuplicateKey)
	assert.Empty(t, sender.sent)

	r, _ := store.Row(idx)
	assert.True(t, r.IsVirtual())
}

func TestCommit_SendFailureKeepsLocalChange(t *testing.T) {
	store, sender, c := newTable(t)
	sender.err = errors.New("not connected")

	_, err := c.Commit(0, 1, "ANN")
	require.Error(t, err)
	assert.ErrorIs(t, err, sender.err)

	v, _ := store.Cell(0, 1)
	assert.Equal(t, ir.String("ANN"), v)
}

func TestCommit_SendFailureLeavesRowVirtual(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(1)
	sender.err = errors.New("not connected")

	_, err := c.Commit(idx, 0, "42")
	require.Error(t, err)

	r, _ := store.Row(idx)
	assert.True(t, r.IsVirtual())

	sender.err = nil
	res, err := c.Commit(idx, 0, "42")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision)
}

func TestCommit_OutOfRange(t *testing.T) {
	_, _, c := newTable(t)

	_, err := c.Commit(0, 7, "x")
	assert.ErrorIs(t, err, rowstore.ErrIndexOutOfRange)
	_, err = c.Commit(9, 0, "x")
	assert.ErrorIs(t, err, rowstore.ErrIndexOutOfRange)
}

func TestDelete_CapturesKeyBeforeRemoval(t *testing.T) {
	store := rowstore.New()
	require.NoError(t, store.ApplySchema(
		[]ir.ColumnSchema{{Name: "code", DataType: "string"}},
		[]ir.Constraint{{Key: strp("code")}},
	))
	require.NoError(t, store.ApplyRowSnapshot([]string{"code"}, [][]ir.Value{
		{ir.String("w")}, {ir.String("x")}, {ir.String("y")}, {ir.String("abc")}, {ir.String("z")},
	}))
	sender := &recordingSender{}
	c := New(store, sender)

	res, err := c.Delete(3)
	require.NoError(t, err)
	assert.Equal(t, DecisionDelete, res.Decision)

	require.Len(t, sender.sent, 1)
	data, err := sender.sent[0].Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"action":"delete","key":"abc"}`, string(data))

	assert.Equal(t, 4, store.RowCount())
	v, _ := store.Cell(3, 0)
	assert.Equal(t, ir.String("z"), v)
	assert.True(t, store.HasPendingDelete(ir.MustKeyOf(ir.String("abc"))))
}

func TestDelete_VirtualRowIsLocalOnly(t *testing.T) {
	store, sender, c := newTable(t)
	idx := c.AddRow(0)

	res, err := c.Delete(idx)
	require.NoError(t, err)
	assert.Equal(t, DecisionBuffer, res.Decision)
	assert.Empty(t, sender.sent)
	assert.Equal(t, 2, store.RowCount())
}

func TestDuplicate(t *testing.T) {
	store, sender, c := newTable(t)

	idx, err := c.Duplicate(0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Empty(t, sender.sent)

	r, _ := store.Row(idx)
	assert.True(t, r.IsVirtual())
	assert.Equal(t, []ir.Value{ir.Null{}, ir.String("ann"), ir.Int(30)}, r.Cells)

	_, err = c.Duplicate(10)
	assert.ErrorIs(t, err, rowstore.ErrIndexOutOfRange)
}

func TestRejected(t *testing.T) {
	err := error(Rejected(&rowstore.Rejection{Action: ir.ActionUpdate, Key: ir.Int(7), Message: "read only"}))
	assert.True(t, IsMutationRejected(err))
	assert.Equal(t, "mutation rejected: update 7: read only", err.Error())

	assert.Nil(t, Rejected(nil))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "create", DecisionCreate.String())
	assert.Equal(t, "decision(0)", Decision(0).String())
}
