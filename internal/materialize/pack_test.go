package materialize

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/example/event-board/internal/recurrence"
)

var general = Rate{Title: "General", Amount: 10, Currency: "EUR"}

func weeklyGroups(t *testing.T, starts ...time.Time) recurrence.Groups {
	t.Helper()
	ranges := make([]recurrence.Range, len(starts))
	for i, s := range starts {
		ranges[i] = recurrence.Range{Start: s, End: s.Add(time.Hour)}
	}
	groups, err := recurrence.Expand(recurrence.Mode{Cadence: recurrence.Weekly}, ranges, 3)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	return groups
}

func singleGroups(t *testing.T, starts ...time.Time) recurrence.Groups {
	t.Helper()
	ranges := make([]recurrence.Range, len(starts))
	for i, s := range starts {
		ranges[i] = recurrence.Range{Start: s, End: s.Add(time.Hour)}
	}
	groups, err := recurrence.Single(ranges)
	if err != nil {
		t.Fatalf("Single: %v", err)
	}
	return groups
}

func TestSelectPlanCoversEveryFlagCombination(t *testing.T) {
	t.Parallel()

	cases := []struct {
		repeat, custom, perDay bool
		want                   Plan
	}{
		{false, false, false, Plan{Kind: Single}},
		{false, false, true, Plan{Kind: Single}},
		{true, false, false, Plan{Kind: RepeatedGroup}},
		{true, false, true, Plan{Kind: RepeatedGroup}},
		{false, true, false, Plan{Kind: PerWeekday}},
		{false, true, true, Plan{Kind: PerDayCustom, PerIndexRates: true}},
		{true, true, false, Plan{Kind: RepeatedGroup}},
		{true, true, true, Plan{Kind: RepeatedGroup, PerIndexRates: true}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("repeat=%t custom=%t perDay=%t", tc.repeat, tc.custom, tc.perDay), func(t *testing.T) {
			t.Parallel()
			if got := SelectPlan(tc.repeat, tc.custom, tc.perDay); got != tc.want {
				t.Fatalf("SelectPlan = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPackSingleSharesRates(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 12, 22, 15, 30, 0, 0, time.UTC)
	packed, err := Pack(SelectPlan(false, false, false), singleGroups(t, start), Payload{
		IsPublic: []bool{true},
		Capacity: []int{40},
		Rates:    []Rate{general},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(packed) != 1 || len(packed[0].Slots) != 1 {
		t.Fatalf("unexpected packing: %+v", packed)
	}
	slot := packed[0].Slots[0]
	if !slot.Start.Equal(start) || !slot.IsPublic || slot.Capacity != 40 {
		t.Fatalf("unexpected slot: %+v", slot)
	}
	if len(slot.Rates) != 1 || slot.Rates[0] != general {
		t.Fatalf("unexpected rates: %+v", slot.Rates)
	}
}

func TestPackRepeatedGroupKeepsEveryOccurrence(t *testing.T) {
	t.Parallel()

	a := time.Date(2024, 12, 22, 15, 30, 0, 0, time.UTC)
	b := time.Date(2024, 12, 24, 9, 0, 0, 0, time.UTC)
	packed, err := Pack(SelectPlan(true, true, false), weeklyGroups(t, a, b), Payload{
		IsPublic: []bool{true, false},
		Capacity: []int{10, 20},
		Rates:    []Rate{general},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(packed) != 2 {
		t.Fatalf("got %d packed groups, want 2", len(packed))
	}
	for _, p := range packed {
		if len(p.Slots) != 3 {
			t.Fatalf("group %d has %d slots, want 3", p.Index, len(p.Slots))
		}
		for _, slot := range p.Slots {
			if slot.IsPublic != (p.Index == 0) || slot.Capacity != 10*(p.Index+1) {
				t.Fatalf("group %d slot resolved visibility=%t capacity=%d", p.Index, slot.IsPublic, slot.Capacity)
			}
			if len(slot.Rates) != 1 || slot.Rates[0] != general {
				t.Fatalf("group %d slot rates = %+v", p.Index, slot.Rates)
			}
		}
	}
}

func TestPackPerIndexRates(t *testing.T) {
	t.Parallel()

	a := time.Date(2024, 12, 23, 10, 0, 0, 0, time.UTC)
	b := time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC)
	payload := Payload{
		RatesPerIndex: [][]Rate{
			{{Title: "Monday", Amount: 5, Currency: "EUR"}},
			{{Title: "Wednesday", Amount: 7, Currency: "EUR"}, {Title: "Child", Amount: 3, Currency: "EUR"}},
		},
		Rates: []Rate{general},
	}

	packed, err := Pack(SelectPlan(false, true, true), singleGroups(t, a, b), payload)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if got := packed[0].Slots[0].Rates; len(got) != 1 || got[0].Title != "Monday" {
		t.Fatalf("index 0 rates = %+v", got)
	}
	if got := packed[1].Slots[0].Rates; len(got) != 2 || got[0].Title != "Wednesday" {
		t.Fatalf("index 1 rates = %+v", got)
	}

	payload.RatesPerIndex = payload.RatesPerIndex[:1]
	if _, err := Pack(SelectPlan(false, true, true), singleGroups(t, a, b), payload); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestPackVisibilityResolution(t *testing.T) {
	t.Parallel()

	starts := []time.Time{
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}
	groups := singleGroups(t, starts...)

	t.Run("broadcast", func(t *testing.T) {
		t.Parallel()
		packed, err := Pack(Plan{Kind: PerWeekday}, groups, Payload{Capacity: []int{8}})
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}
		for _, p := range packed {
			if p.Slots[0].Capacity != 8 {
				t.Fatalf("index %d capacity = %d, want broadcast 8", p.Index, p.Slots[0].Capacity)
			}
		}
	})

	t.Run("empty leaves zero value", func(t *testing.T) {
		t.Parallel()
		packed, err := Pack(Plan{Kind: PerWeekday}, groups, Payload{})
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}
		if packed[2].Slots[0].IsPublic || packed[2].Slots[0].Capacity != 0 {
			t.Fatalf("unexpected defaults: %+v", packed[2].Slots[0])
		}
	})

	t.Run("short list", func(t *testing.T) {
		t.Parallel()
		if _, err := Pack(Plan{Kind: PerWeekday}, groups, Payload{IsPublic: []bool{true, false}}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
		}
	})
}

func TestPackRejectsRepeatsForSinglePlans(t *testing.T) {
	t.Parallel()

	groups := weeklyGroups(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	if _, err := Pack(Plan{Kind: Single}, groups, Payload{}); !errors.Is(err, ErrUnexpectedRepeat) {
		t.Fatalf("expected ErrUnexpectedRepeat, got %v", err)
	}
	if _, err := Pack(Plan{Kind: Single}, recurrence.Groups{{}}, Payload{}); !errors.Is(err, ErrEmptyGroup) {
		t.Fatalf("expected ErrEmptyGroup, got %v", err)
	}
}

func TestPackIsIdempotent(t *testing.T) {
	t.Parallel()

	groups := weeklyGroups(t,
		time.Date(2024, 12, 22, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 12, 23, 8, 0, 0, 0, time.UTC),
	)
	payload := Payload{
		IsPublic:      []bool{true, false},
		Capacity:      []int{5},
		RatesPerIndex: [][]Rate{{general}, {{Title: "VIP", Amount: 25, Currency: "EUR"}}},
	}
	plan := SelectPlan(true, true, true)

	first, err := Pack(plan, groups, payload)
	if err != nil {
		t.Fatalf("first Pack: %v", err)
	}
	first[0].Slots[0].Rates[0].Amount = 999

	second, err := Pack(plan, groups, payload)
	if err != nil {
		t.Fatalf("second Pack: %v", err)
	}
	third, err := Pack(plan, groups, payload)
	if err != nil {
		t.Fatalf("third Pack: %v", err)
	}
	if !reflect.DeepEqual(second, third) {
		t.Fatalf("packing differs between runs:\n%+v\n%+v", second, third)
	}
	if second[0].Slots[0].Rates[0].Amount != 10 {
		t.Fatal("mutating an earlier result leaked into the payload")
	}
}
