package recurrence

import (
	"errors"
	"fmt"
)

const (
	msgExpectedList   = "Expected list of dates"
	msgExpectedSingle = "Expected dates list with a single item"
)

// ErrInvalidRange indicates a range whose start is not before its end.
var ErrInvalidRange = errors.New("recurrence: range start must be before end")

// ErrInvalidOccurrences indicates a repetition count below one.
var ErrInvalidOccurrences = errors.New("recurrence: occurrences must be at least 1")

// ErrNoWeekdays indicates a custom weekday selection without any weekday.
var ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")

// ErrInvalidWeekday indicates a weekday index outside 0..6.
var ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 (Monday) and 6 (Sunday)")

// ModeError reports an "every" index that maps to no cadence.
type ModeError struct {
	Every int
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("Invalid 'every' value (%d)", e.Every)
}

// ShapeError reports a range list whose cardinality does not fit the cadence.
type ShapeError struct {
	Message string
}

func (e *ShapeError) Error() string {
	return e.Message
}
