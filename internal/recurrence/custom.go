package recurrence

import "sort"

// BuildWeekdayRanges derives the source ranges of a custom weekday posting.
//
// Index 0 is base unmodified. Indices 1..N hold one range per distinct
// weekday in ascending order (0 = Monday). The aligned start is base.Start
// moved forward to the weekday; the aligned end takes base.End's clock time on
// that same date, so a range spanning several days collapses to one day.
func BuildWeekdayRanges(base Range, weekdays []int) ([]Range, error) {
	if len(weekdays) == 0 {
		return nil, ErrNoWeekdays
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(weekdays))
	distinct := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		if wd < 0 || wd > 6 {
			return nil, ErrInvalidWeekday
		}
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		distinct = append(distinct, wd)
	}
	sort.Ints(distinct)

	ranges := make([]Range, 0, len(distinct)+1)
	ranges = append(ranges, base)
	for _, wd := range distinct {
		start := AlignToWeekday(base.Start, wd)
		aligned := Range{Start: start, End: combineDateTime(start, base.End.In(start.Location()))}
		if err := aligned.Validate(); err != nil {
			return nil, err
		}
		ranges = append(ranges, aligned)
	}
	return ranges, nil
}
