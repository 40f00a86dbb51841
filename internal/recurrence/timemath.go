package recurrence

import (
	"fmt"
	"time"
)

// BeforeOrEqual reports whether start does not fall after end.
func BeforeOrEqual(start, end time.Time) bool {
	return !start.After(end)
}

// ShiftDays moves t by n calendar days keeping its wall clock and location.
func ShiftDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// ShiftWeeks moves t by n weeks.
func ShiftWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// ShiftMonths moves t by n calendar months. When the day of month does not
// exist in the target month it is clamped to that month's last day, so
// January 31 plus one month is the last day of February.
func ShiftMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ShiftYears moves t by n years with the same clamping as ShiftMonths.
func ShiftYears(t time.Time, n int) time.Time {
	return ShiftMonths(t, 12*n)
}

// WeekdayIndex returns the weekday of t with Monday as 0 and Sunday as 6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// AlignToWeekday moves t forward to the next date whose WeekdayIndex equals
// target. A date already on target is returned unchanged.
func AlignToWeekday(t time.Time, target int) time.Time {
	if target < 0 || target > 6 {
		panic(fmt.Sprintf("recurrence: weekday index %d out of range", target))
	}
	days := (target - WeekdayIndex(t) + 7) % 7
	return t.AddDate(0, 0, days)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilDaysBetween counts calendar days from a to b using each value's own
// wall-clock date, which keeps DST transitions out of the count.
func civilDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func combineDateTime(dateSource, clock time.Time) time.Time {
	y, m, d := dateSource.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), dateSource.Location())
}
