package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that no item exists with the requested id.
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalidItem reports an item that violates the lifecycle invariants.
	ErrInvalidItem = errors.New("invalid queue item")
	// ErrInvalidTransition reports an operator action the item's status does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidItem, fmt.Sprintf(format, args...))
}
