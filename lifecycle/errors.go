package lifecycle

import (
	"fmt"

	"github.com/GoCodeAlone/modhooks"
)

// TransitionError is returned when an operation is not allowed from the
// module's current state. It wraps modhooks.ErrInvalidTransition.
type TransitionError struct {
	ID   string
	From modhooks.State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s module %s: module is %s", e.Op, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return modhooks.ErrInvalidTransition
}
