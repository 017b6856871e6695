package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the acting identity may not perform the
	// operation. No mutation has happened.
	ErrUnauthorized = errors.New("not allowed")
	// ErrFormTimeout means the requester abandoned the detail form.
	ErrFormTimeout = errors.New("details form timed out")
	// ErrFormCancelled means the requester cancelled the detail form.
	ErrFormCancelled = errors.New("details form cancelled")
)

// ValidationError carries a user-facing message about bad input. It is
// raised before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
