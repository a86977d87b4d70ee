package engine

import (
	"errors"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/rowstore"
)

// ErrClosed is returned by operations on a closed grid.
var ErrClosed = errors.New("grid closed")

// IsFatal reports whether err must be surfaced to the user as the grid's
// pending error: transport failures (recoverable with Retry) and schema
// errors (fatal for the table). Reconciliation and rejected mutations are
// logged only.
// Uses errors.As to handle wrapped errors.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return conn.IsConnectionError(err) ||
		errors.Is(err, conn.ErrNotConnected) ||
		rowstore.IsSchemaError(err)
}

// IsRetryable reports whether Retry can clear err.
func IsRetryable(err error) bool {
	return conn.IsConnectionError(err) || errors.Is(err, conn.ErrNotConnected)
}
