package availability

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("consultant not found")
	ErrForbidden = errors.New("only the owning consultant may change availability")
)

// ValidationError reports a well-formed but unacceptable request value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
