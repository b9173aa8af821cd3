package extension

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDays             = errors.New("requested days must be between 1 and 30")
	ErrUnknownReservation      = errors.New("unknown reservation")
	ErrUnknownRequest          = errors.New("unknown extension request")
	ErrReservationNotConfirmed = errors.New("reservation is not confirmed")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrInvalidDecision         = errors.New("decision must be approved or rejected")

	// ErrConflict means the reservation already has an unresolved request.
	ErrConflict = errors.New("an extension request is already pending for this reservation")
)

// ValidationError is a rejected operation caused by caller input. It is not a
// system fault.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error { return &ValidationError{Field: field, Err: err} }

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
