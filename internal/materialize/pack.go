package materialize

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/event-board/internal/recurrence"
)

var (
	// ErrIndexOutOfRange is returned when a per-index list is shorter than the
	// number of groups it must cover.
	ErrIndexOutOfRange = errors.New("materialize: index out of range")
	// ErrEmptyGroup is returned when a group carries no occurrence.
	ErrEmptyGroup = errors.New("materialize: occurrence group is empty")
	// ErrUnexpectedRepeat is returned when a non-repeating plan receives a
	// group with several occurrences.
	ErrUnexpectedRepeat = errors.New("materialize: plan does not repeat")
)

// Rate is one posted price.
type Rate struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Payload carries the per-posting visibility, capacity and pricing values.
//
// IsPublic and Capacity follow the broadcast rule: a single value applies to
// every index, a longer list is indexed by group, an empty list leaves the
// zero value.
type Payload struct {
	IsPublic      []bool
	Capacity      []int
	Rates         []Rate
	RatesPerIndex [][]Rate
}

// Slot is one line ready to be persisted.
type Slot struct {
	Start    time.Time
	End      time.Time
	IsPublic bool
	Capacity int
	Rates    []Rate
}

// Packed holds the slots produced for one output index.
type Packed struct {
	Index int
	Slots []Slot
}

// Pack pairs every occurrence group with its visibility, capacity and rates.
// It reads its arguments only, so packing the same input twice yields equal
// output.
func Pack(plan Plan, groups recurrence.Groups, payload Payload) ([]Packed, error) {
	out := make([]Packed, 0, len(groups))
	for index, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("group %d: %w", index, ErrEmptyGroup)
		}
		if plan.Kind != RepeatedGroup && len(group) > 1 {
			return nil, fmt.Errorf("group %d under %s: %w", index, plan.Kind, ErrUnexpectedRepeat)
		}

		isPublic, err := resolve(payload.IsPublic, index)
		if err != nil {
			return nil, fmt.Errorf("visibility: %w", err)
		}
		capacity, err := resolve(payload.Capacity, index)
		if err != nil {
			return nil, fmt.Errorf("capacity: %w", err)
		}
		rates, err := plan.rates(payload, index)
		if err != nil {
			return nil, fmt.Errorf("rates: %w", err)
		}

		slots := make([]Slot, len(group))
		for i, occ := range group {
			slots[i] = Slot{
				Start:    occ.Start,
				End:      occ.End,
				IsPublic: isPublic,
				Capacity: capacity,
				Rates:    cloneRates(rates),
			}
		}
		out = append(out, Packed{Index: index, Slots: slots})
	}
	return out, nil
}

func (p Plan) rates(payload Payload, index int) ([]Rate, error) {
	if !p.PerIndexRates {
		return payload.Rates, nil
	}
	if index >= len(payload.RatesPerIndex) {
		return nil, fmt.Errorf("%w: no rates for index %d", ErrIndexOutOfRange, index)
	}
	return payload.RatesPerIndex[index], nil
}

func resolve[T any](values []T, index int) (T, error) {
	var zero T
	switch {
	case len(values) == 0:
		return zero, nil
	case len(values) == 1:
		return values[0], nil
	case index < len(values):
		return values[index], nil
	default:
		return zero, fmt.Errorf("%w: index %d of %d values", ErrIndexOutOfRange, index, len(values))
	}
}

func cloneRates(rates []Rate) []Rate {
	if len(rates) == 0 {
		return nil
	}
	out := make([]Rate, len(rates))
	copy(out, rates)
	return out
}
