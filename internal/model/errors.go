package model

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist for the caller.
	ErrNotFound = errors.New("not found")

	// ErrValidation wraps every input validation failure.
	ErrValidation = errors.New("validation failed")

	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidClock    = errors.New("invalid time, expected HH:MM")
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidRecurrence is returned when a recurrence rule is malformed,
	// e.g. a weekly rule without days.
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")

	ErrInvalidOutcome    = errors.New("invalid review outcome")
	ErrAlreadyReviewed   = errors.New("daily task already reviewed")
	ErrNotReviewable     = errors.New("only pending daily tasks can be reviewed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyPlanned    = errors.New("task already planned for this date")
)
