package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks input the service refuses without touching state
	ErrValidation = errors.New("validation failed")
	// ErrInvalidWindow is returned when an opt-in does not end after it starts
	ErrInvalidWindow = fmt.Errorf("%w: end time must be after start time", ErrValidation)
	// ErrNotMember is returned when a user acts on a group they do not belong to
	ErrNotMember = errors.New("you must be a member of this group to opt in")
	// ErrForbidden is returned when a user acts on a record owned by someone else
	ErrForbidden = errors.New("not authorized")
)

// Clock returns the current time. Services never read the wall clock directly.
type Clock func() time.Time

func orNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
