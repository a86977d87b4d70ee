package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces a deterministic JSON encoding.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (RFC 8785 order)
//  2. No HTML escaping (< > & are kept literal)
//  3. Strings are NFC normalized
//
// Journal comparison and golden traces go through this function so equal
// content always produces equal bytes. It must not be used for wire
// frames: normalization rewrites cell text and keys.
func MarshalCanonical(v any) ([]byte, error) {
	return marshal(v, true)
}

// MarshalWire is MarshalCanonical without normalization. Object keys are
// still sorted so a command always encodes to the same bytes, but strings
// go out exactly as the user typed them or the server sent them.
func MarshalWire(v any) ([]byte, error) {
	return marshal(v, false)
}

func marshal(v any, nfc bool) ([]byte, error) {
	w := canonicalWriter{nfc: nfc}
	if err := w.write(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type canonicalWriter struct {
	buf bytes.Buffer
	nfc bool
}

func (w *canonicalWriter) write(v any) error {
	buf := &w.buf
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return w.writeString(string(val))
	case string:
		return w.writeString(val)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case Float:
		return writeCanonicalFloat(buf, float64(val))
	case float64:
		return writeCanonicalFloat(buf, val)
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case Raw:
		if len(val) == 0 {
			buf.WriteString("null")
			return nil
		}
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(val))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return fmt.Errorf("raw value: %w", err)
		}
		return w.write(decoded)
	case json.Number:
		if _, err := val.Float64(); err != nil {
			return fmt.Errorf("invalid number %q: %w", val, err)
		}
		buf.WriteString(string(val))
	case []Value:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := w.write(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := w.write(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]Value:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = elem
		}
		return w.writeObject(m)
	case map[string]any:
		return w.writeObject(val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v has no JSON encoding", f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeString writes a JSON string without HTML escaping, NFC normalized
// in canonical mode.
func (w *canonicalWriter) writeString(s string) error {
	if w.nfc {
		s = norm.NFC.String(s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline
	w.buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func (w *canonicalWriter) writeObject(obj map[string]any) error {
	buf := &w.buf
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := w.writeString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := w.write(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareKeysUTF16 orders strings by UTF-16 code units.
// Go's native string comparison uses UTF-8 bytes, which orders
// supplementary-plane characters differently.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
