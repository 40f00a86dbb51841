package application

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/event-board/internal/geocode"
	"github.com/example/event-board/internal/materialize"
	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/recurrence"
)

func ptr[T any](v T) *T { return &v }

func newTestEventService(repo *eventRepositoryStub, geo *geocoderStub) *EventService {
	now := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	counter := 0
	ids := func() string {
		counter++
		return "id-" + string(rune('a'+counter-1))
	}
	return NewEventService(repo, geo, ids, func() time.Time { return now }, EventConfig{})
}

func TestEventService_CreateEvent(t *testing.T) {
	t.Parallel()

	owner := Principal{UserID: "owner-1"}
	start := time.Date(2024, 12, 22, 15, 30, 0, 0, time.UTC)

	t.Run("stores one line and one rate for a single posting", func(t *testing.T) {
		t.Parallel()

		repo := newEventRepositoryStub()
		svc := newTestEventService(repo, &geocoderStub{reverse: geocode.Result{DisplayAddress: "1 Main St"}})

		event, err := svc.CreateEvent(context.Background(), CreateEventParams{
			Principal: owner,
			Title:     " Market ",
			Location:  LocationInput{Latitude: ptr(35.0), Longitude: ptr(139.0)},
			Schedule: ScheduleInput{
				Ranges:   []recurrence.Range{{Start: start, End: start.Add(2 * time.Hour)}},
				Capacity: []int{20},
				Rates:    []materialize.Rate{{Title: "Adult", Amount: 10, Currency: "USD"}},
			},
		})
		if err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
		if len(event.Lines) != 1 || len(event.Rates) != 1 {
			t.Fatalf("expected 1 line and 1 rate, got %d lines and %d rates", len(event.Lines), len(event.Rates))
		}
		if event.Header.Title != "Market" || event.Header.Address != "1 Main St" || event.Header.Latitude != 35.0 {
			t.Fatalf("unexpected header %+v", event.Header)
		}
		line := event.Lines[0]
		if !line.IsPublic || line.Capacity != 20 || line.HeaderID != event.Header.ID {
			t.Fatalf("unexpected line %+v", line)
		}
		if event.Rates[0].LineID != line.ID {
			t.Fatalf("rate not attached to line: %+v", event.Rates[0])
		}
		if _, ok := repo.events[event.Header.ID]; !ok {
			t.Fatal("event was not stored")
		}
	})

	t.Run("expands weekly repetitions", func(t *testing.T) {
		t.Parallel()

		repo := newEventRepositoryStub()
		svc := newTestEventService(repo, &geocoderStub{forward: geocode.Result{Point: geocode.Point{Lat: 1, Lon: 2}, DisplayAddress: "Resolved"}})

		event, err := svc.CreateEvent(context.Background(), CreateEventParams{
			Principal: owner,
			Title:     "Yoga",
			Location:  LocationInput{Address: "park"},
			Schedule: ScheduleInput{
				Ranges:      []recurrence.Range{{Start: start, End: start.Add(time.Hour)}},
				Repeat:      true,
				Every:       1,
				Occurrences: 3,
				Rates:       []materialize.Rate{{Title: "Drop-in", Amount: 8, Currency: "EUR"}},
			},
		})
		if err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
		want := []time.Time{
			start,
			time.Date(2024, 12, 29, 15, 30, 0, 0, time.UTC),
			time.Date(2025, 1, 5, 15, 30, 0, 0, time.UTC),
		}
		if len(event.Lines) != len(want) {
			t.Fatalf("expected %d lines, got %d", len(want), len(event.Lines))
		}
		for i, line := range event.Lines {
			if !line.Start.Equal(want[i]) {
				t.Fatalf("line %d starts at %s, want %s", i, line.Start, want[i])
			}
		}
		if event.Header.Address != "Resolved" || event.Header.Latitude != 1 {
			t.Fatalf("expected geocoded header, got %+v", event.Header)
		}
		if len(event.Rates) != len(want) {
			t.Fatalf("expected one rate per line, got %d", len(event.Rates))
		}
		owners := map[string]bool{}
		for _, rate := range event.Rates {
			if rate.Title != "Drop-in" || rate.Amount != 8 || rate.Currency != "EUR" {
				t.Fatalf("unexpected rate %+v", rate)
			}
			if owners[rate.LineID] {
				t.Fatalf("line %s owns more than one rate copy", rate.LineID)
			}
			owners[rate.LineID] = true
		}
		for _, line := range event.Lines {
			if !owners[line.ID] {
				t.Fatalf("line %s has no rate", line.ID)
			}
		}
	})

	t.Run("packs custom schedules", func(t *testing.T) {
		t.Parallel()

		day := func(d int) time.Time { return time.Date(2024, 12, d, 15, 30, 0, 0, time.UTC) }
		adult := materialize.Rate{Title: "Adult", Amount: 10, Currency: "USD"}
		child := materialize.Rate{Title: "Child", Amount: 5, Currency: "USD"}
		senior := materialize.Rate{Title: "Senior", Amount: 7, Currency: "USD"}
		tuesday := recurrence.Range{Start: day(24), End: day(24).Add(time.Hour)}
		base := recurrence.Range{Start: start, End: start.Add(time.Hour)}

		tests := []struct {
			name       string
			schedule   ScheduleInput
			wantStarts []time.Time
			wantCap    []int
			wantRates  []int
		}{
			{
				name: "weekday builder",
				schedule: ScheduleInput{
					Ranges:   []recurrence.Range{base},
					Custom:   true,
					Weekdays: []int{2, 0},
					Capacity: []int{1, 2, 3},
					Rates:    []materialize.Rate{adult},
				},
				wantStarts: []time.Time{day(22), day(23), day(25)},
				wantCap:    []int{1, 2, 3},
				wantRates:  []int{1, 1, 1},
			},
			{
				name: "caller supplied days",
				schedule: ScheduleInput{
					Ranges:        []recurrence.Range{base, tuesday},
					Custom:        true,
					CustomPerDay:  true,
					Capacity:      []int{5},
					RatesPerIndex: [][]materialize.Rate{{adult}, {child, senior}},
				},
				wantStarts: []time.Time{day(22), day(24)},
				wantCap:    []int{5, 5},
				wantRates:  []int{1, 2},
			},
			{
				name: "repeated weekday builder",
				schedule: ScheduleInput{
					Ranges:      []recurrence.Range{base},
					Repeat:      true,
					Every:       0,
					Occurrences: 2,
					Custom:      true,
					Weekdays:    []int{2},
					Capacity:    []int{4, 6},
					Rates:       []materialize.Rate{adult},
				},
				wantStarts: []time.Time{day(22), day(29), day(25), time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)},
				wantCap:    []int{4, 4, 6, 6},
				wantRates:  []int{1, 1, 1, 1},
			},
			{
				name: "repeated caller supplied days",
				schedule: ScheduleInput{
					Ranges:        []recurrence.Range{base, tuesday},
					Repeat:        true,
					Every:         0,
					Occurrences:   2,
					Custom:        true,
					CustomPerDay:  true,
					RatesPerIndex: [][]materialize.Rate{{adult}, {child, senior}},
				},
				wantStarts: []time.Time{day(22), day(29), day(24), day(31)},
				wantCap:    []int{0, 0, 0, 0},
				wantRates:  []int{1, 1, 2, 2},
			},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				svc := newTestEventService(newEventRepositoryStub(), &geocoderStub{forward: geocode.Result{DisplayAddress: "Hall"}})
				event, err := svc.CreateEvent(context.Background(), CreateEventParams{
					Principal: owner,
					Title:     "Workshop",
					Location:  LocationInput{Address: "hall"},
					Schedule:  tt.schedule,
				})
				if err != nil {
					t.Fatalf("CreateEvent failed: %v", err)
				}
				if len(event.Lines) != len(tt.wantStarts) {
					t.Fatalf("expected %d lines, got %d", len(tt.wantStarts), len(event.Lines))
				}
				perLine := map[string]int{}
				for _, rate := range event.Rates {
					perLine[rate.LineID]++
				}
				total := 0
				for i, line := range event.Lines {
					if !line.Start.Equal(tt.wantStarts[i]) {
						t.Fatalf("line %d starts at %s, want %s", i, line.Start, tt.wantStarts[i])
					}
					if !line.End.Equal(tt.wantStarts[i].Add(time.Hour)) {
						t.Fatalf("line %d ends at %s", i, line.End)
					}
					if line.Capacity != tt.wantCap[i] {
						t.Fatalf("line %d capacity = %d, want %d", i, line.Capacity, tt.wantCap[i])
					}
					if perLine[line.ID] != tt.wantRates[i] {
						t.Fatalf("line %d has %d rates, want %d", i, perLine[line.ID], tt.wantRates[i])
					}
					total += tt.wantRates[i]
				}
				if len(event.Rates) != total {
					t.Fatalf("expected %d rates, got %d", total, len(event.Rates))
				}
			})
		}
	})

	t.Run("rejects malformed custom schedules", func(t *testing.T) {
		t.Parallel()

		base := recurrence.Range{Start: start, End: start.Add(time.Hour)}
		tests := []struct {
			name      string
			schedule  ScheduleInput
			wantField string
		}{
			{
				name:      "weekday builder with two ranges",
				schedule:  ScheduleInput{Ranges: []recurrence.Range{base, base}, Custom: true, Weekdays: []int{1}},
				wantField: "schedule.ranges",
			},
			{
				name:      "weekday builder without weekdays",
				schedule:  ScheduleInput{Ranges: []recurrence.Range{base}, Custom: true},
				wantField: "schedule.weekdays",
			},
			{
				name: "missing rates for a day",
				schedule: ScheduleInput{
					Ranges:        []recurrence.Range{base, {Start: start.Add(48 * time.Hour), End: start.Add(49 * time.Hour)}},
					Custom:        true,
					CustomPerDay:  true,
					RatesPerIndex: [][]materialize.Rate{{{Title: "Adult", Amount: 1, Currency: "USD"}}},
				},
				wantField: "schedule",
			},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				repo := newEventRepositoryStub()
				svc := newTestEventService(repo, &geocoderStub{})
				_, err := svc.CreateEvent(context.Background(), CreateEventParams{
					Principal: owner,
					Title:     "Workshop",
					Location:  LocationInput{Address: "hall"},
					Schedule:  tt.schedule,
				})
				var vErr *ValidationError
				if !errors.As(err, &vErr) || vErr.FieldErrors[tt.wantField] == "" {
					t.Fatalf("expected %s error, got %v", tt.wantField, err)
				}
				if len(repo.events) != 0 {
					t.Fatal("invalid schedule was stored")
				}
			})
		}
	})

	t.Run("reports schedule and location problems as field errors", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newEventRepositoryStub(), &geocoderStub{})
		_, err := svc.CreateEvent(context.Background(), CreateEventParams{
			Principal: owner,
			Schedule: ScheduleInput{
				Ranges: []recurrence.Range{{Start: start, End: start.Add(-time.Hour)}},
			},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"title", "location", "schedule.ranges"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s to be reported, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects unknown cadences", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newEventRepositoryStub(), &geocoderStub{})
		_, err := svc.CreateEvent(context.Background(), CreateEventParams{
			Principal: owner,
			Title:     "x",
			Location:  LocationInput{Address: "a"},
			Schedule: ScheduleInput{
				Ranges:      []recurrence.Range{{Start: start, End: start.Add(time.Hour)}},
				Repeat:      true,
				Every:       9,
				Occurrences: 2,
			},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["schedule.every"] == "" {
			t.Fatalf("expected schedule.every error, got %v", err)
		}
	})

	t.Run("turns unresolvable addresses into validation errors", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newEventRepositoryStub(), &geocoderStub{err: geocode.ErrNoResult})
		_, err := svc.CreateEvent(context.Background(), CreateEventParams{
			Principal: owner,
			Title:     "x",
			Location:  LocationInput{Address: "nowhere"},
			Schedule:  ScheduleInput{Ranges: []recurrence.Range{{Start: start, End: start.Add(time.Hour)}}},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["location.address"] == "" {
			t.Fatalf("expected location.address error, got %v", err)
		}
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newEventRepositoryStub(), &geocoderStub{})
		if _, err := svc.CreateEvent(context.Background(), CreateEventParams{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestEventService_GetEvent(t *testing.T) {
	t.Parallel()

	repo := newEventRepositoryStub()
	repo.events["h1"] = sampleEvent()
	svc := newTestEventService(repo, nil)

	owned, err := svc.GetEvent(context.Background(), Principal{UserID: "owner-1"}, "h1")
	if err != nil {
		t.Fatalf("GetEvent(owner) failed: %v", err)
	}
	if len(owned.Lines) != 2 || len(owned.Rates) != 2 {
		t.Fatalf("owner should see everything, got %+v", owned)
	}

	public, err := svc.GetEvent(context.Background(), Principal{}, "h1")
	if err != nil {
		t.Fatalf("GetEvent(anonymous) failed: %v", err)
	}
	if len(public.Lines) != 1 || public.Lines[0].ID != "l-public" || len(public.Rates) != 1 {
		t.Fatalf("anonymous callers should see public lines only, got %+v", public)
	}

	if _, err := svc.GetEvent(context.Background(), Principal{}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventService_Nearby(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC)
	repo := newEventRepositoryStub()
	repo.nearby = []persistence.NearbyLine{
		{Header: persistence.EventHeader{ID: "far", Latitude: 35.10, Longitude: 139.0}, Line: persistence.EventLine{ID: "far-1", Start: start}},
		{Header: persistence.EventHeader{ID: "near", Latitude: 35.01, Longitude: 139.0}, Line: persistence.EventLine{ID: "near-2", Start: start.Add(time.Hour)}},
		{Header: persistence.EventHeader{ID: "near", Latitude: 35.01, Longitude: 139.0}, Line: persistence.EventLine{ID: "near-1", Start: start}},
		{Header: persistence.EventHeader{ID: "outside", Latitude: 36.0, Longitude: 139.0}, Line: persistence.EventLine{ID: "outside-1", Start: start}},
	}
	svc := newTestEventService(repo, nil)

	results, err := svc.Nearby(context.Background(), NearbyParams{Latitude: 35.0, Longitude: 139.0, RadiusKm: 20})
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.Line.ID)
	}
	if strings.Join(got, ",") != "near-1,near-2,far-1" {
		t.Fatalf("unexpected ordering %v", got)
	}
	if !repo.lastQuery.PublicOnly || repo.lastQuery.MinLatitude >= 35.0 || repo.lastQuery.MaxLatitude <= 35.0 {
		t.Fatalf("unexpected query %+v", repo.lastQuery)
	}
	if results[0].DistanceKm <= 0 || results[0].DistanceKm > 2 {
		t.Fatalf("unexpected distance %f", results[0].DistanceKm)
	}

	if _, err := svc.Nearby(context.Background(), NearbyParams{Latitude: 120, Longitude: 0}); err == nil {
		t.Fatal("expected validation error for invalid latitude")
	}
	if _, err := svc.Nearby(context.Background(), NearbyParams{Latitude: 0, Longitude: 0, RadiusKm: 5000}); err == nil {
		t.Fatal("expected validation error for oversized radius")
	}
}

func TestEventService_DeleteEvent(t *testing.T) {
	t.Parallel()

	repo := newEventRepositoryStub()
	repo.events["h1"] = sampleEvent()
	svc := newTestEventService(repo, nil)

	if err := svc.DeleteEvent(context.Background(), Principal{UserID: "intruder"}, "h1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteEvent(context.Background(), Principal{UserID: "owner-1"}, "h1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, ok := repo.events["h1"]; ok {
		t.Fatal("event still stored")
	}
}

func TestEventService_Exports(t *testing.T) {
	t.Parallel()

	repo := newEventRepositoryStub()
	repo.events["h1"] = sampleEvent()
	svc := newTestEventService(repo, nil)

	var ics bytes.Buffer
	if _, err := svc.WriteCalendar(context.Background(), "h1", &ics); err != nil {
		t.Fatalf("WriteCalendar failed: %v", err)
	}
	if strings.Count(ics.String(), "BEGIN:VEVENT") != 1 {
		t.Fatalf("expected only the public line in the feed, got:\n%s", ics.String())
	}

	var xlsx bytes.Buffer
	if _, err := svc.WriteWorkbook(context.Background(), Principal{UserID: "other"}, "h1", &xlsx); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.WriteWorkbook(context.Background(), Principal{UserID: "owner-1"}, "h1", &xlsx); err != nil {
		t.Fatalf("WriteWorkbook failed: %v", err)
	}
	if xlsx.Len() == 0 {
		t.Fatal("workbook is empty")
	}
}

func sampleEvent() persistence.Event {
	start := time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC)
	return persistence.Event{
		Header: persistence.EventHeader{ID: "h1", OwnerID: "owner-1", Title: "Fair", Address: "Square"},
		Lines: []persistence.EventLine{
			{ID: "l-public", HeaderID: "h1", Start: start, End: start.Add(time.Hour), IsPublic: true},
			{ID: "l-private", HeaderID: "h1", Start: start.Add(24 * time.Hour), End: start.Add(25 * time.Hour)},
		},
		Rates: []persistence.EventRate{
			{ID: "r1", LineID: "l-public", Title: "Entry", Amount: 5, Currency: "USD"},
			{ID: "r2", LineID: "l-private", Title: "Entry", Amount: 5, Currency: "USD"},
		},
	}
}

// eventRepositoryStub implements EventRepository and ChangeRepository for tests.
type eventRepositoryStub struct {
	events    map[string]persistence.Event
	nearby    []persistence.NearbyLine
	lastQuery persistence.NearbyQuery
	applied   []persistence.EventChanges
	applyErr  error
}

func newEventRepositoryStub() *eventRepositoryStub {
	return &eventRepositoryStub{events: map[string]persistence.Event{}}
}

func (s *eventRepositoryStub) CreateEvent(ctx context.Context, event persistence.Event) error {
	s.events[event.Header.ID] = event
	return nil
}

func (s *eventRepositoryStub) GetEvent(ctx context.Context, headerID string) (persistence.Event, error) {
	event, ok := s.events[headerID]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return event, nil
}

func (s *eventRepositoryStub) GetHeader(ctx context.Context, id string) (persistence.EventHeader, error) {
	event, ok := s.events[id]
	if !ok {
		return persistence.EventHeader{}, persistence.ErrNotFound
	}
	return event.Header, nil
}

func (s *eventRepositoryStub) GetLine(ctx context.Context, id string) (persistence.EventLine, error) {
	for _, event := range s.events {
		for _, line := range event.Lines {
			if line.ID == id {
				return line, nil
			}
		}
	}
	return persistence.EventLine{}, persistence.ErrNotFound
}

func (s *eventRepositoryStub) GetRate(ctx context.Context, id string) (persistence.EventRate, error) {
	for _, event := range s.events {
		for _, rate := range event.Rates {
			if rate.ID == id {
				return rate, nil
			}
		}
	}
	return persistence.EventRate{}, persistence.ErrNotFound
}

func (s *eventRepositoryStub) ListHeadersByOwner(ctx context.Context, ownerID string) ([]persistence.EventHeader, error) {
	var out []persistence.EventHeader
	for _, event := range s.events {
		if event.Header.OwnerID == ownerID {
			out = append(out, event.Header)
		}
	}
	return out, nil
}

func (s *eventRepositoryStub) SearchLines(ctx context.Context, query persistence.NearbyQuery) ([]persistence.NearbyLine, error) {
	s.lastQuery = query
	return append([]persistence.NearbyLine(nil), s.nearby...), nil
}

func (s *eventRepositoryStub) DeleteEvent(ctx context.Context, headerID string) error {
	if _, ok := s.events[headerID]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, headerID)
	return nil
}

func (s *eventRepositoryStub) ApplyEventChanges(ctx context.Context, changes persistence.EventChanges) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, changes)
	return nil
}

// geocoderStub implements Geocoder for tests.
type geocoderStub struct {
	forward geocode.Result
	reverse geocode.Result
	err     error
}

func (g *geocoderStub) Forward(ctx context.Context, address string) (geocode.Result, error) {
	if g.err != nil {
		return geocode.Result{}, g.err
	}
	return g.forward, nil
}

func (g *geocoderStub) Reverse(ctx context.Context, lat, lon float64) (geocode.Result, error) {
	if g.err != nil {
		return geocode.Result{}, g.err
	}
	return g.reverse, nil
}
