package mutation

import (
	"errors"
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/rowstore"
)

// MutationRejected reports that the remote store refused a dispatched
// command. The optimistic local change is kept.
type MutationRejected struct {
	Action  ir.Action
	Key     ir.Value
	Message string
}

// Error implements the error interface.
func (e *MutationRejected) Error() string {
	if ir.IsNull(e.Key) {
		return fmt.Sprintf("mutation rejected: %s: %s", e.Action, e.Message)
	}
	return fmt.Sprintf("mutation rejected: %s %s: %s", e.Action, ir.Text(e.Key), e.Message)
}

// IsMutationRejected returns true if err is or wraps a MutationRejected.
func IsMutationRejected(err error) bool {
	var mr *MutationRejected
	return errors.As(err, &mr)
}

// Rejected converts a reconciled error frame into a MutationRejected.
func Rejected(r *rowstore.Rejection) *MutationRejected {
	if r == nil {
		return nil
	}
	return &MutationRejected{Action: r.Action, Key: r.Key, Message: r.Message}
}
