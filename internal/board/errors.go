package board

import (
	"errors"
	"fmt"
)

// TransportError indicates an API or network failure talking to the board
// service. It is returned after retries are exhausted; callers distinguish
// it from validation failures with errors.As.
type TransportError struct {
	Op         string // the operation that failed, e.g. "create card"
	StatusCode int    // last HTTP status, 0 when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("board: %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("board: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates a referenced board entity (list, card, member)
// is absent. Callers downgrade it to a warning where safe.
type NotFoundError struct {
	Kind string // "list", "card", "member"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("board: %s %q not found", e.Kind, e.Name)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
