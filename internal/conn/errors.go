package conn

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when no session is established.
var ErrNotConnected = errors.New("not connected")

// ConnectionErrorCode categorizes transport failures.
type ConnectionErrorCode string

const (
	// ErrCodeDial indicates the transport could not be established.
	ErrCodeDial ConnectionErrorCode = "DIAL_FAILED"

	// ErrCodeAuth indicates the bearer token was rejected before dialing.
	ErrCodeAuth ConnectionErrorCode = "AUTH"

	// ErrCodeSend indicates a frame could not be written.
	ErrCodeSend ConnectionErrorCode = "SEND_FAILED"

	// ErrCodeLost indicates an established session dropped.
	ErrCodeLost ConnectionErrorCode = "CONNECTION_LOST"
)

// ConnectionError is a transport-level failure. It is recoverable: the
// caller surfaces it to the user and may retry with Open.
type ConnectionError struct {
	Code     ConnectionErrorCode
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError returns true if err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
