package recurrence

import "fmt"

// Cadence is the step between two generated occurrences.
type Cadence int

const (
	// Daily repeats every calendar day.
	Daily Cadence = iota
	// Weekly repeats every seven days.
	Weekly
	// Monthly repeats on the same day of each month, clamped to short months.
	Monthly
	// Yearly repeats on the same date of each year, clamped for February 29.
	Yearly
	// WeekdayOnly repeats daily but keeps only Monday to Friday.
	WeekdayOnly
	// WeekendOnly repeats daily but keeps only Saturday and Sunday.
	WeekendOnly
)

func (c Cadence) String() string {
	switch c {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	case WeekdayOnly:
		return "weekday"
	case WeekendOnly:
		return "weekend"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// singleRange reports whether the cadence only accepts one source range.
func (c Cadence) singleRange() bool {
	return c == Daily || c == WeekdayOnly || c == WeekendOnly
}

// simpleCadences is indexed by the "every" value of a simple posting.
var simpleCadences = []Cadence{Daily, Weekly, Monthly, Yearly, WeekdayOnly, WeekendOnly}

// customCadences is indexed by the "every" value of a custom posting.
var customCadences = []Cadence{Weekly, Monthly, Yearly}

// Mode selects a cadence and the family it was requested from.
type Mode struct {
	Cadence Cadence
	Custom  bool
}

// SimpleMode resolves the "every" index of a simple repeating posting.
func SimpleMode(every int) (Mode, error) {
	if every < 0 || every >= len(simpleCadences) {
		return Mode{}, &ModeError{Every: every}
	}
	return Mode{Cadence: simpleCadences[every]}, nil
}

// CustomMode resolves the "every" index of a custom repeating posting.
func CustomMode(every int) (Mode, error) {
	if every < 0 || every >= len(customCadences) {
		return Mode{}, &ModeError{Every: every}
	}
	return Mode{Cadence: customCadences[every], Custom: true}, nil
}

func (m Mode) validate() error {
	if m.Cadence < Daily || m.Cadence > WeekendOnly {
		return &ModeError{Every: int(m.Cadence)}
	}
	if m.Custom && m.Cadence != Weekly && m.Cadence != Monthly && m.Cadence != Yearly {
		return &ModeError{Every: int(m.Cadence)}
	}
	return nil
}

func (m Mode) String() string {
	if m.Custom {
		return "custom-" + m.Cadence.String()
	}
	return m.Cadence.String()
}
