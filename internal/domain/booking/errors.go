package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrServiceNotFound   = errors.New("service not found")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("not allowed to access this booking")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
