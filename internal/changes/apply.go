package changes

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/event-board/internal/persistence"
)

// ErrStale is returned when a record's old value no longer matches the stored
// value it was tracked against.
var ErrStale = errors.New("changes: stored record changed since the proposal was made")

// Target is a loaded event that success records are applied to.
type Target struct {
	Header *persistence.EventHeader
	Lines  map[string]*persistence.EventLine
	Rates  map[string]*persistence.EventRate

	touchedHeader bool
	touchedLines  map[string]struct{}
	touchedRates  map[string]struct{}
}

// NewTarget copies event into an applicable target.
func NewTarget(event persistence.Event) *Target {
	header := event.Header
	t := &Target{
		Header:       &header,
		Lines:        make(map[string]*persistence.EventLine, len(event.Lines)),
		Rates:        make(map[string]*persistence.EventRate, len(event.Rates)),
		touchedLines: map[string]struct{}{},
		touchedRates: map[string]struct{}{},
	}
	for i := range event.Lines {
		line := event.Lines[i]
		t.Lines[line.ID] = &line
	}
	for i := range event.Rates {
		rate := event.Rates[i]
		t.Rates[rate.ID] = &rate
	}
	return t
}

// Apply writes every success record into the target. Error records are
// ignored. now stamps UpdatedAt on every touched row.
func (t *Target) Apply(records []Record, now time.Time) error {
	for _, r := range records {
		if !r.Succeeded() {
			continue
		}
		var err error
		switch r.Table {
		case TableHeader:
			err = t.applyHeader(r)
		case TableLines:
			err = t.applyLine(r)
		case TableRates:
			err = t.applyRate(r)
		default:
			err = fmt.Errorf("changes: unknown table %q", r.Table)
		}
		if err != nil {
			return fmt.Errorf("%s %s.%s: %w", r.Table, r.RecordID, r.Field, err)
		}
	}

	if t.touchedHeader {
		t.Header.UpdatedAt = now
	}
	for id := range t.touchedLines {
		line := t.Lines[id]
		if !line.Start.Before(line.End) {
			return fmt.Errorf("line %s: %w", id, ErrStale)
		}
		line.UpdatedAt = now
	}
	for id := range t.touchedRates {
		t.Rates[id].UpdatedAt = now
	}
	return nil
}

// Changed returns copies of the rows Apply modified.
func (t *Target) Changed() (*persistence.EventHeader, []persistence.EventLine, []persistence.EventRate) {
	var header *persistence.EventHeader
	if t.touchedHeader {
		h := *t.Header
		header = &h
	}
	lines := make([]persistence.EventLine, 0, len(t.touchedLines))
	for id := range t.touchedLines {
		lines = append(lines, *t.Lines[id])
	}
	rates := make([]persistence.EventRate, 0, len(t.touchedRates))
	for id := range t.touchedRates {
		rates = append(rates, *t.Rates[id])
	}
	return header, lines, rates
}

func (t *Target) applyHeader(r Record) error {
	h := t.Header
	if h == nil || h.ID != r.RecordID {
		return persistence.ErrNotFound
	}
	if r.Field == "coordinates" {
		if FormatPoint(h.Latitude, h.Longitude) != r.Old {
			return ErrStale
		}
		lat, lon, err := ParsePoint(r.New)
		if err != nil {
			return err
		}
		h.Latitude, h.Longitude = lat, lon
		t.touchedHeader = true
		return nil
	}
	field := headerText(h, r.Field)
	if field == nil {
		return fmt.Errorf("unknown header field")
	}
	if *field != r.Old {
		return ErrStale
	}
	*field = r.New
	t.touchedHeader = true
	return nil
}

func (t *Target) applyLine(r Record) error {
	line, ok := t.Lines[r.RecordID]
	if !ok {
		return persistence.ErrNotFound
	}
	switch r.Field {
	case "start", "end":
		bound := &line.Start
		if r.Field == "end" {
			bound = &line.End
		}
		old, err := time.Parse(time.RFC3339, r.Old)
		if err != nil {
			return err
		}
		if !bound.Truncate(time.Second).Equal(old) {
			return ErrStale
		}
		value, err := time.Parse(time.RFC3339, r.New)
		if err != nil {
			return err
		}
		*bound = value
	case "isPublic":
		if formatBool(line.IsPublic) != r.Old {
			return ErrStale
		}
		value, err := strconv.ParseBool(r.New)
		if err != nil {
			return err
		}
		line.IsPublic = value
	case "capacity":
		if formatInt(line.Capacity) != r.Old {
			return ErrStale
		}
		value, err := strconv.Atoi(r.New)
		if err != nil {
			return err
		}
		line.Capacity = value
	default:
		return fmt.Errorf("unknown line field")
	}
	t.touchedLines[line.ID] = struct{}{}
	return nil
}

func (t *Target) applyRate(r Record) error {
	rate, ok := t.Rates[r.RecordID]
	if !ok {
		return persistence.ErrNotFound
	}
	switch r.Field {
	case "title":
		if rate.Title != r.Old {
			return ErrStale
		}
		rate.Title = r.New
	case "amount":
		if formatAmount(rate.Amount) != r.Old {
			return ErrStale
		}
		value, err := strconv.ParseFloat(r.New, 64)
		if err != nil {
			return err
		}
		rate.Amount = value
	case "currency":
		if rate.Currency != r.Old {
			return ErrStale
		}
		rate.Currency = r.New
	default:
		return fmt.Errorf("unknown rate field")
	}
	t.touchedRates[rate.ID] = struct{}{}
	return nil
}
