package rowstore

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/gridsync/internal/ir"
)

// pendingID addresses a pending entry: either a key or a virtual row id.
// Keys are type-tagged ("s:", "i:", "b:") so the "v:" prefix cannot collide.
type pendingID string

func keyID(k ir.Key) pendingID {
	return pendingID(k)
}

func virtualID(id string) pendingID {
	return pendingID("v:" + id)
}

// Store is the local view of one remote table.
type Store struct {
	ids IDGenerator

	columns []ir.Column
	keyCol  int // index of the primary-key column, -1 before a schema is applied
	rows    []ir.Row
	keySet  map[ir.Key]struct{}

	pendingInserts map[pendingID]map[string]ir.Value
	pendingUpdates map[pendingID]map[string]ir.Value
	pendingDeletes map[pendingID]struct{}

	schemaLoaded bool
	dataLoaded   bool
	connected    bool
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the virtual row id source. Tests pass a sequence
// generator for stable ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		ids:            UUIDv7Generator{},
		keyCol:         -1,
		keySet:         make(map[ir.Key]struct{}),
		pendingInserts: make(map[pendingID]map[string]ir.Value),
		pendingUpdates: make(map[pendingID]map[string]ir.Value),
		pendingDeletes: make(map[pendingID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConnected records a connection transition. Either direction clears the
// loaded flags; rows are kept so readers still see the last snapshot.
func (s *Store) SetConnected(connected bool) {
	s.connected = connected
	s.schemaLoaded = false
	s.dataLoaded = false
}

// IsLoaded reports whether both schema and rows arrived on the current
// connection.
func (s *Store) IsLoaded() bool {
	return s.connected && s.schemaLoaded && s.dataLoaded
}

// Columns returns a copy of the column list.
func (s *Store) Columns() []ir.Column {
	out := make([]ir.Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Column returns the column at index.
func (s *Store) Column(index int) (ir.Column, bool) {
	if index < 0 || index >= len(s.columns) {
		return ir.Column{}, false
	}
	return s.columns[index], true
}

// ColumnIndex returns the position of the named column, or -1.
func (s *Store) ColumnIndex(name string) int {
	for i, c := range s.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// KeyColumn returns the index of the primary-key column, or -1.
func (s *Store) KeyColumn() int {
	return s.keyCol
}

// RowCount returns the number of rows, virtual rows included.
func (s *Store) RowCount() int {
	return len(s.rows)
}

// Row returns a copy of the row at index.
func (s *Store) Row(index int) (ir.Row, bool) {
	if index < 0 || index >= len(s.rows) {
		return ir.Row{}, false
	}
	return s.rows[index].Clone(), true
}

// Cell returns the value at (row, col).
func (s *Store) Cell(row, col int) (ir.Value, bool) {
	if row < 0 || row >= len(s.rows) || col < 0 || col >= len(s.rows[row].Cells) {
		return nil, false
	}
	return s.rows[row].Cells[col], true
}

// KeyAt returns the key of the row at index and the raw key cell.
// Virtual rows and rows with a null key cell return ir.NoKey.
func (s *Store) KeyAt(index int) (ir.Key, ir.Value, error) {
	if index < 0 || index >= len(s.rows) {
		return ir.NoKey, nil, fmt.Errorf("row %d: %w", index, ErrIndexOutOfRange)
	}
	row := s.rows[index]
	if row.IsVirtual() || s.keyCol < 0 || s.keyCol >= len(row.Cells) {
		return ir.NoKey, ir.Null{}, nil
	}
	cell := row.Cells[s.keyCol]
	key, err := ir.KeyOf(cell)
	if err != nil {
		return ir.NoKey, cell, err
	}
	return key, cell, nil
}

// IndexOfKey returns the row index holding key, or -1.
func (s *Store) IndexOfKey(key ir.Key) int {
	if key.IsZero() {
		return -1
	}
	if _, ok := s.keySet[key]; !ok {
		return -1
	}
	for i := range s.rows {
		if k, _, err := s.KeyAt(i); err == nil && k == key {
			return i
		}
	}
	return -1
}

// RowID returns a stable identity for the row at index: its virtual id or
// its key. Unlike the index it survives rows being inserted or removed
// around it. A row with neither returns false.
func (s *Store) RowID(index int) (string, bool) {
	if index < 0 || index >= len(s.rows) {
		return "", false
	}
	if r := s.rows[index]; r.IsVirtual() {
		return string(virtualID(r.VirtualID)), true
	}
	key, _, err := s.KeyAt(index)
	if err != nil || key.IsZero() {
		return "", false
	}
	return string(keyID(key)), true
}

// IndexOfRowID returns the current index of the row with the given
// identity, or -1 when it is gone.
func (s *Store) IndexOfRowID(id string) int {
	if vid, ok := strings.CutPrefix(id, "v:"); ok {
		return slices.IndexFunc(s.rows, func(r ir.Row) bool { return r.VirtualID == vid })
	}
	return s.IndexOfKey(ir.Key(id))
}

// HasKey reports whether a row with key is present.
func (s *Store) HasKey(key ir.Key) bool {
	_, ok := s.keySet[key]
	return ok
}

// ApplySchema installs the column list and primary key.
//
// Exactly one key constraint is required. On error nothing changes. Rows
// already present (e.g. a snapshot that arrived first) are remapped onto
// the new column order by name and deduplicated by key.
func (s *Store) ApplySchema(columns []ir.ColumnSchema, constraints []ir.Constraint) error {
	var keys []string
	foreign := make(map[string]bool)
	for _, c := range constraints {
		if c.Key != nil {
			keys = append(keys, *c.Key)
		}
		if c.Reference != nil {
			foreign[c.Reference.Column] = true
		}
	}
	switch {
	case len(keys) == 0:
		return &SchemaError{Code: ErrCodeNoKey}
	case len(keys) > 1:
		return &SchemaError{Code: ErrCodeAmbiguousKey}
	}

	cols := make([]ir.Column, len(columns))
	keyCol := -1
	for i, c := range columns {
		cols[i] = ir.Column{
			Name:         c.Name,
			DataType:     ir.ParseDataType(c.DataType),
			IsPrimaryKey: c.Name == keys[0],
			IsForeignKey: foreign[c.Name],
		}
		if c.Name == keys[0] {
			keyCol = i
		}
	}
	if keyCol < 0 {
		return &SchemaError{Code: ErrCodeUnknownKeyColumn, Column: keys[0]}
	}

	if len(s.rows) > 0 {
		s.remap(cols)
	}
	s.columns = cols
	s.keyCol = keyCol
	s.rebuildKeys()
	s.schemaLoaded = true

	slog.Debug("schema applied", "columns", len(cols), "key", keys[0])
	return nil
}

// remap moves every row's cells from the current column order to cols.
func (s *Store) remap(cols []ir.Column) {
	from := make(map[string]int, len(s.columns))
	for i, c := range s.columns {
		from[c.Name] = i
	}
	for ri, row := range s.rows {
		cells := nullCells(len(cols))
		for ci, c := range cols {
			if old, ok := from[c.Name]; ok && old < len(row.Cells) {
				cells[ci] = row.Cells[old]
			}
		}
		s.rows[ri].Cells = cells
	}
}

// rebuildKeys recomputes keySet from the rows. A later row with an already
// seen key overwrites the earlier one in place and is dropped.
func (s *Store) rebuildKeys() {
	s.keySet = make(map[ir.Key]struct{}, len(s.rows))
	at := make(map[ir.Key]int, len(s.rows))
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.IsVirtual() {
			kept = append(kept, row)
			continue
		}
		key, err := ir.KeyOf(row.Cells[s.keyCol])
		if err != nil {
			slog.Warn("row has unusable key", "error", err)
			kept = append(kept, row)
			continue
		}
		if key.IsZero() {
			kept = append(kept, row)
			continue
		}
		if idx, ok := at[key]; ok {
			kept[idx] = row
			continue
		}
		at[key] = len(kept)
		s.keySet[key] = struct{}{}
		kept = append(kept, row)
	}
	clear(s.rows[len(kept):])
	s.rows = kept
}

// ApplyRowSnapshot merges a page of rows.
//
// Each row must have one cell per name in columns. Names are mapped onto the
// schema's column order; names the schema does not know are ignored. When
// no schema is loaded yet, the snapshot's own column order is adopted.
//
// A row whose key is already present overwrites that row in place;
// otherwise it is appended. Rows whose key has a delete in flight are
// skipped.
func (s *Store) ApplyRowSnapshot(columns []string, rows [][]ir.Value) error {
	for i, r := range rows {
		if len(r) != len(columns) {
			return malformed(ir.ActionGetTableData,
				fmt.Sprintf("row %d has %d cells, want %d", i, len(r), len(columns)), nil)
		}
	}

	cols := s.columns
	adopt := len(cols) == 0
	if adopt {
		cols = make([]ir.Column, len(columns))
		for i, name := range columns {
			cols[i] = ir.Column{Name: name, DataType: ir.TypeString}
		}
	}

	position := make(map[string]int, len(cols))
	for i, c := range cols {
		position[c.Name] = i
	}

	type planned struct {
		cells []ir.Value
		key   ir.Key
	}
	plan := make([]planned, len(rows))
	for i, r := range rows {
		cells := nullCells(len(cols))
		for j, name := range columns {
			if p, ok := position[name]; ok {
				cells[p] = r[j]
			}
		}
		plan[i].cells = cells
		if !adopt && s.keyCol >= 0 {
			key, err := ir.KeyOf(cells[s.keyCol])
			if err != nil {
				return malformed(ir.ActionGetTableData, fmt.Sprintf("row %d key", i), err)
			}
			plan[i].key = key
		}
	}

	if adopt {
		s.columns = cols
		s.keyCol = -1
	}
	for _, p := range plan {
		s.upsert(p.key, p.cells)
	}
	s.dataLoaded = true

	slog.Debug("rows applied", "incoming", len(rows), "rows", len(s.rows))
	return nil
}

// upsert overwrites the row holding key or appends a new one.
func (s *Store) upsert(key ir.Key, cells []ir.Value) {
	if key.IsZero() {
		s.rows = append(s.rows, ir.Row{Cells: cells})
		return
	}
	if _, deleting := s.pendingDeletes[keyID(key)]; deleting {
		return
	}
	if idx := s.IndexOfKey(key); idx >= 0 {
		s.rows[idx] = ir.Row{Cells: cells}
		return
	}
	s.keySet[key] = struct{}{}
	s.rows = append(s.rows, ir.Row{Cells: cells})
}

// LocalInsertVirtualRow inserts an all-null row after the given index and
// returns its position and virtual id. -1 inserts at the top; an index past
// the end appends. Nothing is sent remotely.
func (s *Store) LocalInsertVirtualRow(after int) (int, string) {
	pos := after + 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.rows) {
		pos = len(s.rows)
	}

	id := s.ids.Generate()
	row := ir.Row{Cells: nullCells(len(s.columns)), VirtualID: id}
	s.rows = slices.Insert(s.rows, pos, row)
	s.pendingInserts[virtualID(id)] = make(map[string]ir.Value)

	slog.Debug("virtual row inserted", "index", pos, "virtual_id", id)
	return pos, id
}

// LocalDeleteRow removes the row at index immediately and returns it.
//
// A keyed row is remembered in pendingDeletes until the delete is
// acknowledged. A virtual row was never sent, so its pending insert is
// dropped instead.
func (s *Store) LocalDeleteRow(index int) (ir.Row, error) {
	if index < 0 || index >= len(s.rows) {
		return ir.Row{}, fmt.Errorf("delete row %d: %w", index, ErrIndexOutOfRange)
	}
	key, _, _ := s.KeyAt(index)
	row := s.rows[index]

	s.rows = slices.Delete(s.rows, index, index+1)

	switch {
	case row.IsVirtual():
		delete(s.pendingInserts, virtualID(row.VirtualID))
	case !key.IsZero():
		delete(s.keySet, key)
		delete(s.pendingUpdates, keyID(key))
		s.pendingDeletes[keyID(key)] = struct{}{}
	}

	slog.Debug("row deleted locally", "index", index, "key", key.String())
	return row, nil
}

// LocalUpdateCell stages value into (row, col).
//
// Virtual rows record the cell as part of their pending insert; keyed rows
// record it as a pending update under the key the row had before the
// change. Editing the key cell of a keyed row re-keys it; clearing it is
// rejected with ErrKeyRequired.
func (s *Store) LocalUpdateCell(row, col int, value ir.Value) error {
	if row < 0 || row >= len(s.rows) {
		return fmt.Errorf("update row %d: %w", row, ErrIndexOutOfRange)
	}
	if col < 0 || col >= len(s.columns) || col >= len(s.rows[row].Cells) {
		return fmt.Errorf("update column %d: %w", col, ErrIndexOutOfRange)
	}
	if value == nil {
		value = ir.Null{}
	}
	r := &s.rows[row]
	name := s.columns[col].Name

	if r.IsVirtual() {
		r.Cells[col] = value
		s.pendingInserts[virtualID(r.VirtualID)][name] = value
		return nil
	}

	oldKey, _, _ := s.KeyAt(row)
	if col == s.keyCol && !oldKey.IsZero() {
		newKey, err := ir.KeyOf(value)
		if err != nil {
			return fmt.Errorf("update key: %w", err)
		}
		if newKey.IsZero() {
			return fmt.Errorf("update row %d: %w", row, ErrKeyRequired)
		}
		if newKey != oldKey {
			if _, taken := s.keySet[newKey]; taken {
				return fmt.Errorf("update key %s: %w", newKey.String(), ErrDuplicateKey)
			}
			delete(s.keySet, oldKey)
			s.keySet[newKey] = struct{}{}
		}
	}

	r.Cells[col] = value
	if !oldKey.IsZero() {
		pending := s.pendingUpdates[keyID(oldKey)]
		if pending == nil {
			pending = make(map[string]ir.Value)
			s.pendingUpdates[keyID(oldKey)] = pending
		}
		pending[name] = value
	}
	return nil
}

// PromoteVirtual gives a virtual row its key: the key cell is set, the
// virtual id cleared and the key registered. The row's pending insert moves
// from the virtual id to the key until the create is acknowledged.
func (s *Store) PromoteVirtual(row int, keyValue ir.Value) (ir.Key, error) {
	if row < 0 || row >= len(s.rows) {
		return ir.NoKey, fmt.Errorf("promote row %d: %w", row, ErrIndexOutOfRange)
	}
	r := &s.rows[row]
	if !r.IsVirtual() {
		return ir.NoKey, fmt.Errorf("promote row %d: %w", row, ErrNotVirtual)
	}
	if s.keyCol < 0 {
		return ir.NoKey, &SchemaError{Code: ErrCodeNoKey}
	}
	key, err := ir.KeyOf(keyValue)
	if err != nil {
		return ir.NoKey, fmt.Errorf("promote row %d: %w", row, err)
	}
	if key.IsZero() {
		return ir.NoKey, fmt.Errorf("promote row %d: %w", row, ir.ErrInvalidKey)
	}
	if _, taken := s.keySet[key]; taken {
		return ir.NoKey, fmt.Errorf("promote row %d to %s: %w", row, key.String(), ErrDuplicateKey)
	}

	vid := virtualID(r.VirtualID)
	pending := s.pendingInserts[vid]
	if pending == nil {
		pending = make(map[string]ir.Value)
	}
	delete(s.pendingInserts, vid)

	r.Cells[s.keyCol] = keyValue
	pending[s.columns[s.keyCol].Name] = keyValue
	r.VirtualID = ""
	s.keySet[key] = struct{}{}
	s.pendingInserts[keyID(key)] = pending

	slog.Debug("virtual row promoted", "index", row, "key", key.String())
	return key, nil
}

// Pending summarizes changes still awaiting acknowledgement.
type Pending struct {
	Inserts int
	Updates int
	Deletes int
}

// Pending returns the number of pending entries of each kind.
func (s *Store) Pending() Pending {
	return Pending{
		Inserts: len(s.pendingInserts),
		Updates: len(s.pendingUpdates),
		Deletes: len(s.pendingDeletes),
	}
}

// HasPendingInsert reports whether a create for key, or a virtual row with
// the given id, is outstanding.
func (s *Store) HasPendingInsert(key ir.Key, virtual string) bool {
	if virtual != "" {
		_, ok := s.pendingInserts[virtualID(virtual)]
		return ok
	}
	_, ok := s.pendingInserts[keyID(key)]
	return ok
}

// HasPendingUpdate reports whether an update for key is outstanding.
func (s *Store) HasPendingUpdate(key ir.Key) bool {
	_, ok := s.pendingUpdates[keyID(key)]
	return ok
}

// HasPendingDelete reports whether a delete for key is outstanding.
func (s *Store) HasPendingDelete(key ir.Key) bool {
	_, ok := s.pendingDeletes[keyID(key)]
	return ok
}

// Snapshot is the read-side contract of the store. All slices are copies.
type Snapshot struct {
	Columns      []ir.Column `json:"columns"`
	Rows         []ir.Row    `json:"rows"`
	IsLoaded     bool        `json:"isLoaded"`
	SchemaLoaded bool        `json:"schemaLoaded"`
	DataLoaded   bool        `json:"dataLoaded"`
	Connected    bool        `json:"connected"`
}

// Snapshot returns a deep copy of the current table.
func (s *Store) Snapshot() Snapshot {
	rows := make([]ir.Row, len(s.rows))
	for i, r := range s.rows {
		rows[i] = r.Clone()
	}
	return Snapshot{
		Columns:      s.Columns(),
		Rows:         rows,
		IsLoaded:     s.IsLoaded(),
		SchemaLoaded: s.schemaLoaded,
		DataLoaded:   s.dataLoaded,
		Connected:    s.connected,
	}
}

func nullCells(n int) []ir.Value {
	cells := make([]ir.Value, n)
	for i := range cells {
		cells[i] = ir.Null{}
	}
	return cells
}
