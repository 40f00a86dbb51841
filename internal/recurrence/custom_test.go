package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestBuildWeekdayRanges(t *testing.T) {
	t.Parallel()

	// Wednesday 2024-12-18.
	base := Range{
		Start: time.Date(2024, 12, 18, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 18, 12, 30, 0, 0, time.UTC),
	}

	ranges, err := BuildWeekdayRanges(base, []int{4, 0, 4, 2})
	if err != nil {
		t.Fatalf("BuildWeekdayRanges: %v", err)
	}
	if len(ranges) != 4 {
		t.Fatalf("got %d ranges, want original + 3 weekdays", len(ranges))
	}
	if ranges[0] != base {
		t.Fatalf("index 0 = %+v, want unmodified base", ranges[0])
	}

	want := []struct {
		weekday int
		day     int
	}{{0, 23}, {2, 18}, {4, 20}}
	for i, w := range want {
		r := ranges[i+1]
		if WeekdayIndex(r.Start) != w.weekday {
			t.Fatalf("range %d weekday = %d, want %d", i+1, WeekdayIndex(r.Start), w.weekday)
		}
		if r.Start.Day() != w.day {
			t.Fatalf("range %d day = %d, want %d", i+1, r.Start.Day(), w.day)
		}
		if r.Start.Format("15:04") != "10:00" || r.End.Format("15:04") != "12:30" {
			t.Fatalf("range %d clock = %s-%s", i+1, r.Start.Format("15:04"), r.End.Format("15:04"))
		}
	}
}

func TestBuildWeekdayRangesCollapsesMultiDayRanges(t *testing.T) {
	t.Parallel()

	base := Range{
		Start: time.Date(2024, 12, 23, 10, 0, 0, 0, time.UTC), // Monday
		End:   time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC), // Wednesday
	}
	ranges, err := BuildWeekdayRanges(base, []int{1})
	if err != nil {
		t.Fatalf("BuildWeekdayRanges: %v", err)
	}
	aligned := ranges[1]
	if !aligned.Start.Equal(time.Date(2024, 12, 24, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("aligned start = %s", aligned.Start)
	}
	if !aligned.End.Equal(time.Date(2024, 12, 24, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("aligned end = %s, want same-day 12:00", aligned.End)
	}
}

func TestBuildWeekdayRangesErrors(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 12, 18, 10, 0, 0, 0, time.UTC)
	valid := Range{Start: start, End: start.Add(time.Hour)}

	if _, err := BuildWeekdayRanges(valid, nil); !errors.Is(err, ErrNoWeekdays) {
		t.Fatalf("empty weekdays: got %v", err)
	}
	if _, err := BuildWeekdayRanges(valid, []int{7}); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("weekday 7: got %v", err)
	}
	if _, err := BuildWeekdayRanges(Range{Start: start, End: start}, []int{1}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("empty range: got %v", err)
	}

	overnight := Range{Start: start.Add(12 * time.Hour), End: start.Add(15 * time.Hour)}
	if _, err := BuildWeekdayRanges(overnight, []int{3}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("overnight range: got %v", err)
	}
}
