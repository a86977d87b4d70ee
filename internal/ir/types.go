package ir

import "strings"

// DataType is the declared type of a column.
type DataType string

// Data types known to the grid. The remote store spells them in any case
// ("Integer", "integer"); ParseDataType folds them.
const (
	TypeString     DataType = "string"
	TypeInteger    DataType = "integer"
	TypeNumber     DataType = "number"
	TypeBoolean    DataType = "boolean"
	TypeJSON       DataType = "json"
	TypeDate       DataType = "date"
	TypeDateTime   DataType = "datetime"
	TypeMoney      DataType = "money"
	TypePercentage DataType = "percentage"
)

var knownDataTypes = map[string]DataType{
	"string":     TypeString,
	"text":       TypeString,
	"integer":    TypeInteger,
	"int":        TypeInteger,
	"number":     TypeNumber,
	"float":      TypeNumber,
	"boolean":    TypeBoolean,
	"bool":       TypeBoolean,
	"json":       TypeJSON,
	"date":       TypeDate,
	"datetime":   TypeDateTime,
	"money":      TypeMoney,
	"percentage": TypePercentage,
}

// ParseDataType maps a wire spelling to a DataType.
// Unknown spellings are kept lowercased; they encode as pass-through text.
func ParseDataType(s string) DataType {
	lower := strings.ToLower(strings.TrimSpace(s))
	if dt, ok := knownDataTypes[lower]; ok {
		return dt
	}
	if lower == "" {
		return TypeString
	}
	return DataType(lower)
}

// Column describes one column of the table, in rendering order.
type Column struct {
	Name         string   `json:"name"`
	DataType     DataType `json:"dataType"`
	IsPrimaryKey bool     `json:"isPrimaryKey"`
	IsForeignKey bool     `json:"isForeignKey"`
}

// Row is an ordered sequence of cells, one per column.
//
// VirtualID is set only for rows created locally that have not been
// assigned a primary key yet.
type Row struct {
	Cells     []Value `json:"cells"`
	VirtualID string  `json:"virtualId,omitempty"`
}

// IsVirtual reports whether the row was created locally and has no key.
func (r Row) IsVirtual() bool {
	return r.VirtualID != ""
}

// Clone returns a deep copy of the row's cell slice.
func (r Row) Clone() Row {
	return Row{Cells: CloneCells(r.Cells), VirtualID: r.VirtualID}
}

// TableSchema is the schema payload of a getTable frame.
// Older servers spell the constraint list "constraints".
type TableSchema struct {
	Columns     []ColumnSchema `json:"columns"`
	Constraint  []Constraint   `json:"constraint,omitempty"`
	Constraints []Constraint   `json:"constraints,omitempty"`
}

// AllConstraints returns the constraint list under either spelling.
func (s TableSchema) AllConstraints() []Constraint {
	if len(s.Constraint) > 0 {
		return s.Constraint
	}
	return s.Constraints
}

// ColumnSchema is a column as declared by the remote store.
type ColumnSchema struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// Constraint is either a primary key ({"key": "id"}) or a foreign
// key reference ({"reference": {...}}).
type Constraint struct {
	Key       *string    `json:"key,omitempty"`
	Reference *Reference `json:"reference,omitempty"`
}

// Reference is a foreign key constraint.
type Reference struct {
	Column        string `json:"column"`
	ForeignTable  string `json:"foreignTable"`
	ForeignColumn string `json:"foreignColumn"`
}
