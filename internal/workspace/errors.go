package workspace

import (
	"fmt"

	"github.com/corvex/corvex/internal/models"
)

// Error is reported for every failed intent. Kind is one of the models
// sentinels; Err is the underlying cause, if any.
type Error struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s %q: %v", e.Op, e.ID, e.Kind)
	}
	return fmt.Sprintf("%s %q: %v: %v", e.Op, e.ID, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newError classifies err under op and id.
func newError(op, id string, err error) *Error {
	return &Error{Op: op, ID: id, Kind: models.KindOf(err), Err: err}
}

// kindError reports a locally detected failure with no further cause.
func kindError(op, id string, kind error) *Error {
	return &Error{Op: op, ID: id, Kind: kind}
}
