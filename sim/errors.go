package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTable is returned when an order references a table the grid does not have.
	ErrUnknownTable = errors.New("unknown table")
	// ErrDuplicateOrder is returned when an order ID is submitted twice.
	ErrDuplicateOrder = errors.New("duplicate order id")
	// ErrRunCancelled is returned when the run context is cancelled between ticks.
	ErrRunCancelled = errors.New("simulation run cancelled")
)

// InvariantViolation signals a broken caller/collaborator contract, e.g. a robot outside
// the grid or an order claimed twice. It is fatal to the run.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

func newInvariantViolation(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Detail: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err wraps an *InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
