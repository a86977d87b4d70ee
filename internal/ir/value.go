package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface representing a single cell value.
// Only Null, String, Int, Float, Bool, and Raw implement this.
type Value interface {
	cellValue() // Sealed - only these types implement it
}

// Null represents an empty cell (JSON null).
// Using an explicit type keeps nil out of row slices.
type Null struct{}

func (Null) cellValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text cell.
type String string

func (String) cellValue() {}

// Int represents an integral number cell.
type Int int64

func (Int) cellValue() {}

// Float represents a non-integral number cell.
// Floats are allowed in cells but can never be row keys.
type Float float64

func (Float) cellValue() {}

// MarshalJSON implements json.Marshaler for Float.
// NaN and infinities have no JSON spelling and encode as null.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// Bool represents a boolean cell.
type Bool bool

func (Bool) cellValue() {}

// Raw holds an opaque JSON document (array or object) stored in a cell,
// e.g. the contents of a Json column.
type Raw []byte

func (Raw) cellValue() {}

// MarshalJSON implements json.Marshaler for Raw.
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// IsNull reports whether v is the empty cell. A nil interface counts as null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// DecodeValue decodes one JSON value into a cell Value.
// Integral numbers become Int, other numbers Float, arrays and objects Raw.
func DecodeValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return nil, fmt.Errorf("invalid JSON value: %s", data)
		}
		return Null{}, nil

	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return nil, err
		}
		return Raw(buf.Bytes()), nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", data)
		}
		return Float(f), nil
	}
}

// DecodeRow decodes a JSON array into a slice of cell values.
func DecodeRow(data []byte) ([]Value, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cells := make([]Value, len(raw))
	for i, elem := range raw {
		v, err := DecodeValue(elem)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		cells[i] = v
	}
	return cells, nil
}

// ValueFromAny converts a decoded Go value (from YAML or encoding/json) into
// a cell Value. Slices and maps are stored as Raw JSON.
func ValueFromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case json.Number:
		return DecodeValue([]byte(val))
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return Raw(data), nil
	default:
		return nil, fmt.Errorf("unsupported cell type: %T", v)
	}
}

// Text renders a value the way it is shown and edited in a cell.
// Null renders as the empty string.
func Text(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Raw:
		return string(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports whether two values are the same cell content.
// Int(1) and Float(1) are different cells; Raw compares byte-wise.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Raw:
		bv, ok := b.(Raw)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// CloneCells returns a copy of a cell slice. Raw payloads are shared; they
// are never mutated in place.
func CloneCells(cells []Value) []Value {
	if cells == nil {
		return nil
	}
	out := make([]Value, len(cells))
	copy(out, cells)
	return out
}
