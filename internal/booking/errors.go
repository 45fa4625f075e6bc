package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict means the write lost a race against another overlapping
	// write. The caller must re-fetch slots and choose again; retrying the
	// identical request is pointless.
	ErrConflict = errors.New("time slot was taken by another booking")

	// ErrNotFound means the referenced staff, appointment or template is
	// missing or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrPastAppointment means the target appointment already ended;
	// past appointments are frozen.
	ErrPastAppointment = errors.New("appointment is in the past and cannot be changed")
)

// ValidationError is a field-scoped rejection of malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
