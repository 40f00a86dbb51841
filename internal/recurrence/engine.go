package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Range is one bounded (start, end) slot.
type Range struct {
	Start time.Time
	End   time.Time
}

// Validate enforces start < end.
func (r Range) Validate() error {
	if !r.Start.Before(r.End) {
		return ErrInvalidRange
	}
	return nil
}

// Occurrence is one concrete slot produced from a source range. Group is the
// position of the source range and Instance the repetition counter within it.
type Occurrence struct {
	Group    int
	Instance int
	Start    time.Time
	End      time.Time
}

// Groups holds occurrences keyed by source range position. Each group is in
// generation order, which is chronological.
type Groups [][]Occurrence

// Count returns the number of occurrences across every group.
func (g Groups) Count() int {
	total := 0
	for _, group := range g {
		total += len(group)
	}
	return total
}

// Single wraps non-repeating ranges into one occurrence per group.
func Single(ranges []Range) (Groups, error) {
	if len(ranges) == 0 {
		return nil, &ShapeError{Message: msgExpectedList}
	}
	groups := make(Groups, len(ranges))
	for i, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("range %d: %w", i, err)
		}
		groups[i] = []Occurrence{{Group: i, Start: r.Start, End: r.End}}
	}
	return groups, nil
}

// Expand repeats every range occurrences times under mode.
//
// Daily, weekday-only and weekend-only cadences take exactly one range.
// Weekly, monthly and yearly cadences take any number of ranges and expand
// each one independently into its own group. Occurrences keep the location of
// their source range; nothing is converted.
func Expand(mode Mode, ranges []Range, occurrences int) (Groups, error) {
	if err := mode.validate(); err != nil {
		return nil, err
	}
	if occurrences < 1 {
		return nil, ErrInvalidOccurrences
	}
	if len(ranges) == 0 {
		return nil, &ShapeError{Message: msgExpectedList}
	}
	if mode.Cadence.singleRange() && len(ranges) != 1 {
		return nil, &ShapeError{Message: msgExpectedSingle}
	}

	groups := make(Groups, len(ranges))
	for i, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("range %d: %w", i, err)
		}
		group, err := expandRange(mode.Cadence, r, occurrences)
		if err != nil {
			return nil, err
		}
		for j := range group {
			group[j].Group = i
		}
		groups[i] = group
	}
	return groups, nil
}

func expandRange(cadence Cadence, base Range, count int) ([]Occurrence, error) {
	switch cadence {
	case Monthly, Yearly:
		step := ShiftMonths
		if cadence == Yearly {
			step = ShiftYears
		}
		out := make([]Occurrence, count)
		for k := 0; k < count; k++ {
			out[k] = Occurrence{Instance: k, Start: step(base.Start, k), End: step(base.End, k)}
		}
		return out, nil
	default:
		offsets, err := dayOffsets(cadence, base.Start, count)
		if err != nil {
			return nil, err
		}
		out := make([]Occurrence, len(offsets))
		for k, days := range offsets {
			out[k] = Occurrence{Instance: k, Start: ShiftDays(base.Start, days), End: ShiftDays(base.End, days)}
		}
		return out, nil
	}
}

// dayOffsets returns, for each generated date, the number of calendar days
// after start. Offsets are applied to the source bounds afterwards because
// rrule truncates DTSTART to whole seconds.
func dayOffsets(cadence Cadence, start time.Time, count int) ([]int, error) {
	opt := rrule.ROption{Dtstart: start, Count: count}
	switch cadence {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case WeekdayOnly:
		opt.Freq = rrule.DAILY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case WeekendOnly:
		opt.Freq = rrule.DAILY
		opt.Byweekday = []rrule.Weekday{rrule.SA, rrule.SU}
	default:
		return nil, &ModeError{Every: int(cadence)}
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build %s rule: %w", cadence, err)
	}

	dates := rule.All()
	offsets := make([]int, len(dates))
	for i, d := range dates {
		offsets[i] = civilDaysBetween(start, d.In(start.Location()))
	}
	return offsets, nil
}
