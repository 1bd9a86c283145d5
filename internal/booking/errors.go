package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an appointment does not exist, is not
	// owned by the acting client, or is no longer scheduled.
	ErrNotFound = errors.New("appointment not found or no longer scheduled")

	// ErrDoctorNotFound is returned when a doctor id is unknown or inactive.
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrServiceNotFound is returned when a service id is unknown or inactive.
	ErrServiceNotFound = errors.New("service not found")

	// ErrClientNotFound is returned when a client phone has no record.
	ErrClientNotFound = errors.New("client not found")
)

// ValidationError reports a request that can never succeed as issued
// (past date, too far ahead, unsalvageable time, bad acting role). It is
// surfaced verbatim and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid booking request: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports an interval overlap with another scheduled
// appointment for the same doctor. It carries the requested slot so the
// caller can propose alternatives.
type ConflictError struct {
	DoctorID int64
	Date     time.Time
	Time     TimeOfDay
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time %s on %s is already booked for doctor %d",
		e.Time, e.Date.Format("2006-01-02"), e.DoctorID)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var invalid *ValidationError
	return errors.As(err, &invalid)
}
