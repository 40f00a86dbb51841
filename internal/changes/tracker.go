package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/event-board/internal/geocode"
	"github.com/example/event-board/internal/logging"
	"github.com/example/event-board/internal/persistence"
)

// Source reads the stored records a request is compared against.
type Source interface {
	GetHeader(ctx context.Context, id string) (persistence.EventHeader, error)
	GetLine(ctx context.Context, id string) (persistence.EventLine, error)
	GetRate(ctx context.Context, id string) (persistence.EventRate, error)
}

// Geocoder resolves the location fields of a header.
type Geocoder interface {
	Forward(ctx context.Context, address string) (geocode.Result, error)
	Reverse(ctx context.Context, lat, lon float64) (geocode.Result, error)
}

// LineUpdate carries the submitted fields of one line.
type LineUpdate struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// RateUpdate carries the submitted fields of one rate.
type RateUpdate struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Request is one update submission for an event.
type Request struct {
	HeaderID string       `json:"header_id"`
	Header   Fields       `json:"header"`
	Lines    []LineUpdate `json:"lines"`
	Rates    []RateUpdate `json:"rates"`
}

// Config carries the tracker settings.
type Config struct {
	// Location interprets dates submitted without an offset. Defaults to UTC.
	Location *time.Location
}

// Tracker compares update requests against stored records.
type Tracker struct {
	source   Source
	geocoder Geocoder
	location *time.Location
	logger   *slog.Logger
}

// NewTracker wires the tracker collaborators.
func NewTracker(source Source, geocoder Geocoder, cfg Config) *Tracker {
	return NewTrackerWithLogger(source, geocoder, cfg, nil)
}

// NewTrackerWithLogger wires the tracker with an explicit logger.
func NewTrackerWithLogger(source Source, geocoder Geocoder, cfg Config, logger *slog.Logger) *Tracker {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{source: source, geocoder: geocoder, location: loc, logger: logger}
}

var headerTextFields = []string{"title", "description", "category", "img", "img2"}

// Track runs the header, lines and rates passes in that order. Field level
// problems become error records and the passes continue; only failures to
// read stored records abort the run.
func (t *Tracker) Track(ctx context.Context, req Request) ([]Record, error) {
	if t == nil {
		return nil, fmt.Errorf("Tracker is nil")
	}
	if t.source == nil {
		return nil, fmt.Errorf("tracker source not configured")
	}

	logger := t.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	var records []Record
	if len(req.Header) > 0 {
		out, err := t.trackHeader(ctx, req.HeaderID, req.Header)
		if err != nil {
			return nil, err
		}
		records = append(records, out...)
	}
	seenLines := make(map[string]bool, len(req.Lines))
	for _, update := range req.Lines {
		if seenLines[update.ID] {
			records = append(records, duplicate(TableLines, req.HeaderID, update.ID, update.ID))
			continue
		}
		seenLines[update.ID] = true
		out, err := t.trackLine(ctx, req.HeaderID, update)
		if err != nil {
			return nil, err
		}
		records = append(records, out...)
	}
	seenRates := make(map[string]bool, len(req.Rates))
	for _, update := range req.Rates {
		if seenRates[update.ID] {
			records = append(records, duplicate(TableRates, req.HeaderID, "", update.ID))
			continue
		}
		seenRates[update.ID] = true
		out, err := t.trackRate(ctx, req.HeaderID, update)
		if err != nil {
			return nil, err
		}
		records = append(records, out...)
	}

	logger.Debug("tracked changes",
		"header_id", req.HeaderID,
		"records", len(records),
		"successes", len(Successes(records)),
	)
	return records, nil
}

// duplicate rejects a repeated record id. Only the first update of a record
// is tracked so every success record compares against the stored value.
func duplicate(table Table, headerID, lineID, recordID string) Record {
	return Record{
		Table:    table,
		Status:   StatusError,
		HeaderID: headerID,
		LineID:   lineID,
		RecordID: recordID,
		Field:    "id",
		Message:  message(MsgDuplicateRecord),
	}
}

func (t *Tracker) trackHeader(ctx context.Context, headerID string, fields Fields) ([]Record, error) {
	header, err := t.source.GetHeader(ctx, headerID)
	if err != nil {
		return nil, fmt.Errorf("load header %s: %w", headerID, err)
	}

	var out []Record
	base := Record{Table: TableHeader, HeaderID: header.ID, RecordID: header.ID}
	fail := func(field, old, msg string) {
		r := base
		r.Status, r.Field, r.Old, r.Message = StatusError, field, old, message(msg)
		out = append(out, r)
	}
	change := func(field, old, new string) {
		r := base
		r.Status, r.Field, r.Old, r.New = StatusSuccess, field, old, new
		out = append(out, r)
	}

	for _, field := range headerTextFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		current := *headerText(&header, field)
		value, err := textValue(raw)
		if err != nil {
			fail(field, current, MsgInvalidValue)
			continue
		}
		if value != current {
			change(field, current, value)
		}
	}

	storedPoint := FormatPoint(header.Latitude, header.Longitude)

	// A point change wins over an address sent in the same batch.
	pointChanged := false
	if rawPoint, ok := fields["coordinates"]; ok {
		lat, lon, err := pointValue(rawPoint)
		switch {
		case err != nil:
			fail("coordinates", storedPoint, MsgInvalidCoordinates)
		case FormatPoint(lat, lon) == storedPoint:
			fail("coordinates", storedPoint, MsgUnchangedLocation)
		default:
			pointChanged = true
			change("coordinates", storedPoint, FormatPoint(lat, lon))
			t.reverse(ctx, header, lat, lon, change, fail)
		}
	}

	if rawAddress, ok := fields["address"]; ok {
		address, err := textValue(rawAddress)
		switch {
		case pointChanged:
			fail("address", header.Address, MsgAddressSuperseded)
		case err != nil || address == "":
			fail("address", header.Address, MsgInvalidValue)
		default:
			t.forward(ctx, header, address, storedPoint, change, fail)
		}
	}

	return out, nil
}

func (t *Tracker) reverse(ctx context.Context, header persistence.EventHeader, lat, lon float64, change, fail func(field, old, value string)) {
	if t.geocoder == nil {
		fail("address", header.Address, "geocoder not configured")
		return
	}
	res, err := t.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		fail("address", header.Address, err.Error())
		return
	}
	if res.DisplayAddress != "" && res.DisplayAddress != header.Address {
		change("address", header.Address, res.DisplayAddress)
	}
}

func (t *Tracker) forward(ctx context.Context, header persistence.EventHeader, address, storedPoint string, change, fail func(field, old, value string)) {
	if t.geocoder == nil {
		fail("address", header.Address, "geocoder not configured")
		return
	}
	res, err := t.geocoder.Forward(ctx, address)
	if err != nil {
		fail("address", header.Address, err.Error())
		return
	}
	canonical := res.DisplayAddress
	if canonical == "" {
		canonical = address
	}
	if canonical == header.Address {
		fail("address", header.Address, MsgUnchangedLocation)
		return
	}
	change("address", header.Address, canonical)
	if point := FormatPoint(res.Point.Lat, res.Point.Lon); point != storedPoint {
		change("coordinates", storedPoint, point)
	}
}

func (t *Tracker) trackLine(ctx context.Context, headerID string, update LineUpdate) ([]Record, error) {
	base := Record{Table: TableLines, HeaderID: headerID, LineID: update.ID, RecordID: update.ID}

	line, err := t.source.GetLine(ctx, update.ID)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && line.HeaderID != headerID) {
		r := base
		r.Status, r.Field, r.Message = StatusError, "id", message(MsgRecordNotFound)
		return []Record{r}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load line %s: %w", update.ID, err)
	}

	var out []Record
	fail := func(field, old, msg string) {
		r := base
		r.Status, r.Field, r.Old, r.Message = StatusError, field, old, message(msg)
		out = append(out, r)
	}
	change := func(field, old, new string) {
		r := base
		r.Status, r.Field, r.Old, r.New = StatusSuccess, field, old, new
		out = append(out, r)
	}

	oldStart := formatTime(line.Start, t.location)
	oldEnd := formatTime(line.End, t.location)

	var start, end time.Time
	rawStart, hasStart := update.Fields["start"]
	if hasStart {
		if start, err = timeValue(rawStart, t.location); err != nil {
			fail("start", oldStart, MsgInvalidDate)
			hasStart = false
		}
	}
	rawEnd, hasEnd := update.Fields["end"]
	if hasEnd {
		if end, err = timeValue(rawEnd, t.location); err != nil {
			fail("end", oldEnd, MsgInvalidDate)
			hasEnd = false
		}
	}

	switch {
	case hasStart && hasEnd:
		if !start.Before(end) {
			fail("start", oldStart, fmt.Sprintf("Start must be before end (%s)", formatTime(end, t.location)))
			fail("end", oldEnd, fmt.Sprintf("End must be after start (%s)", formatTime(start, t.location)))
			break
		}
		if !start.Equal(line.Start) {
			change("start", oldStart, formatTime(start, t.location))
		}
		if !end.Equal(line.End) {
			change("end", oldEnd, formatTime(end, t.location))
		}
	case hasStart:
		if !start.Before(line.End) {
			fail("start", oldStart, fmt.Sprintf("Start must be before end (%s)", oldEnd))
		} else if !start.Equal(line.Start) {
			change("start", oldStart, formatTime(start, t.location))
		}
	case hasEnd:
		if !line.Start.Before(end) {
			fail("end", oldEnd, fmt.Sprintf("End must be after start (%s)", oldStart))
		} else if !end.Equal(line.End) {
			change("end", oldEnd, formatTime(end, t.location))
		}
	}

	if raw, ok := update.Fields["isPublic"]; ok {
		old := formatBool(line.IsPublic)
		if v, err := boolValue(raw); err != nil {
			fail("isPublic", old, MsgInvalidValue)
		} else if v != line.IsPublic {
			change("isPublic", old, formatBool(v))
		}
	}
	if raw, ok := update.Fields["capacity"]; ok {
		old := formatInt(line.Capacity)
		if v, err := capacityValue(raw); err != nil {
			fail("capacity", old, MsgInvalidValue)
		} else if v != line.Capacity {
			change("capacity", old, formatInt(v))
		}
	}

	return out, nil
}

func (t *Tracker) trackRate(ctx context.Context, headerID string, update RateUpdate) ([]Record, error) {
	base := Record{Table: TableRates, HeaderID: headerID, RecordID: update.ID}
	notFound := func() []Record {
		r := base
		r.Status, r.Field, r.Message = StatusError, "id", message(MsgRecordNotFound)
		return []Record{r}
	}

	rate, err := t.source.GetRate(ctx, update.ID)
	if errors.Is(err, persistence.ErrNotFound) {
		return notFound(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rate %s: %w", update.ID, err)
	}
	line, err := t.source.GetLine(ctx, rate.LineID)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && line.HeaderID != headerID) {
		return notFound(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load line %s: %w", rate.LineID, err)
	}
	base.LineID = line.ID

	var out []Record
	fail := func(field, old, msg string) {
		r := base
		r.Status, r.Field, r.Old, r.Message = StatusError, field, old, message(msg)
		out = append(out, r)
	}
	change := func(field, old, new string) {
		r := base
		r.Status, r.Field, r.Old, r.New = StatusSuccess, field, old, new
		out = append(out, r)
	}

	if raw, ok := update.Fields["title"]; ok {
		if v, err := textValue(raw); err != nil {
			fail("title", rate.Title, MsgInvalidValue)
		} else if v != rate.Title {
			change("title", rate.Title, v)
		}
	}
	if raw, ok := update.Fields["amount"]; ok {
		old := formatAmount(rate.Amount)
		if v, err := amountValue(raw); err != nil {
			fail("amount", old, MsgInvalidValue)
		} else if v != rate.Amount {
			change("amount", old, formatAmount(v))
		}
	}
	if raw, ok := update.Fields["currency"]; ok {
		if v, err := currencyValue(raw); err != nil {
			fail("currency", rate.Currency, MsgInvalidValue)
		} else if v != rate.Currency {
			change("currency", rate.Currency, v)
		}
	}

	return out, nil
}

func headerText(h *persistence.EventHeader, field string) *string {
	switch field {
	case "title":
		return &h.Title
	case "description":
		return &h.Description
	case "category":
		return &h.Category
	case "img":
		return &h.Img
	case "img2":
		return &h.Img2
	case "address":
		return &h.Address
	default:
		return nil
	}
}
