package schedule

import "errors"

// Domain errors for the schedule package.
var (
	// ErrScheduleNotFound is returned when a schedule does not exist on the given device.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("schedule: invalid")

	// ErrInvalidTime is returned for a malformed or out-of-range time of day.
	ErrInvalidTime = errors.New("schedule: invalid time")
)
