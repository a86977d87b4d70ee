package rowstore

import (
	"errors"
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
)

var (
	// ErrIndexOutOfRange is returned for a row or column index outside the
	// current table.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrDuplicateKey is returned when a local change would give two rows
	// the same key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrKeyRequired is returned when a local change would clear the key
	// cell of a row the remote store already knows.
	ErrKeyRequired = errors.New("key cannot be cleared")

	// ErrNotVirtual is returned when promoting a row that already has a key.
	ErrNotVirtual = errors.New("row is not virtual")
)

// SchemaErrorCode categorizes schema rejections.
type SchemaErrorCode string

const (
	// ErrCodeNoKey indicates the schema declares no primary key.
	ErrCodeNoKey SchemaErrorCode = "no key"

	// ErrCodeAmbiguousKey indicates the schema declares more than one
	// primary key.
	ErrCodeAmbiguousKey SchemaErrorCode = "ambiguous key"

	// ErrCodeUnknownKeyColumn indicates the key names a column that is not
	// in the schema.
	ErrCodeUnknownKeyColumn SchemaErrorCode = "unknown key column"
)

// SchemaError rejects a table schema. It is fatal for the table: the grid
// cannot address rows without exactly one key column.
type SchemaError struct {
	Code   SchemaErrorCode
	Column string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema: %s (%s)", e.Code, e.Column)
	}
	return fmt.Sprintf("schema: %s", e.Code)
}

// IsSchemaError returns true if err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// ReconciliationError reports an inbound frame that could not be applied.
// The frame is dropped; the store is unchanged.
type ReconciliationError struct {
	Action ir.Action
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ReconciliationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconcile %s: %s: %v", e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("reconcile %s: %s", e.Action, e.Reason)
}

// Unwrap returns the underlying decode error, if any.
func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// IsReconciliationError returns true if err is or wraps a
// ReconciliationError.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}

func malformed(action ir.Action, reason string, err error) *ReconciliationError {
	return &ReconciliationError{Action: action, Reason: reason, Err: err}
}
