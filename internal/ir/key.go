package ir

import (
	"errors"
	"fmt"
	"strconv"
)

// Key is the canonical text of a row's primary-key value.
//
// Keys are type-tagged so String("7") and Int(7) never collide. String keys
// keep the server's exact bytes: two keys that differ only in Unicode
// normalization are distinct rows. The zero Key means "no key" (a virtual
// row).
type Key string

// NoKey is the key of a row that has not been assigned one.
const NoKey Key = ""

// ErrInvalidKey is returned when a value cannot serve as a row key.
var ErrInvalidKey = errors.New("value cannot be used as a row key")

// KeyOf returns the canonical key for a primary-key cell value.
// Null yields NoKey. Floats and Raw documents are rejected.
func KeyOf(v Value) (Key, error) {
	switch val := v.(type) {
	case nil, Null:
		return NoKey, nil
	case String:
		return Key("s:" + string(val)), nil
	case Int:
		return Key("i:" + strconv.FormatInt(int64(val), 10)), nil
	case Bool:
		return Key("b:" + strconv.FormatBool(bool(val))), nil
	case Float, Raw:
		return NoKey, fmt.Errorf("%w: %T", ErrInvalidKey, v)
	default:
		return NoKey, fmt.Errorf("%w: %T", ErrInvalidKey, v)
	}
}

// MustKeyOf is KeyOf for values known to be valid keys.
// Panics on Float or Raw; intended for tests and literals.
func MustKeyOf(v Value) Key {
	k, err := KeyOf(v)
	if err != nil {
		panic(err)
	}
	return k
}

// IsZero reports whether the key is NoKey.
func (k Key) IsZero() bool {
	return k == NoKey
}

// String returns the key text without its type tag, for logs.
func (k Key) String() string {
	if len(k) < 2 {
		return string(k)
	}
	return string(k[2:])
}
