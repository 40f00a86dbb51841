package testfixtures

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/geocode"
	"github.com/example/event-board/internal/materialize"
	"github.com/example/event-board/internal/recurrence"
)

type serviceEnv struct {
	factory  *ServiceFactory
	harness  *SQLiteHarness
	notifier *RecordingNotifier
	events   *application.EventService
	changes  *application.ChangeService
	owner    UserFixture
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	harness := NewSQLiteHarness(t)
	factory := NewServiceFactory()
	notifier := &RecordingNotifier{}
	geocoder := &StaticGeocoder{
		Addresses: map[string]geocode.Result{
			"Osaka Station": {Point: geocode.Point{Lat: 34.7025, Lon: 135.4959}, DisplayAddress: "Osaka Station, Kita"},
		},
	}

	return &serviceEnv{
		factory:  factory,
		harness:  harness,
		notifier: notifier,
		events:   factory.NewEventService(EventServiceDeps{Events: harness.Storage, Geocoder: geocoder, Logger: logger}),
		changes: factory.NewChangeService(ChangeServiceDeps{
			Events:      harness.Storage,
			Proposals:   harness.Storage,
			Users:       harness.UserDirectory(),
			Geocoder:    geocoder,
			Notifier:    notifier,
			ProposalTTL: 30 * time.Minute,
			Logger:      logger,
		}),
		owner: harness.SeedUser(NewUserFixture()),
	}
}

func TestEventService_CreateAgainstSQLite(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	start := ReferenceTime().Add(48 * time.Hour)

	event, err := env.events.CreateEvent(ctx, application.CreateEventParams{
		Principal: env.owner.Principal(),
		Title:     "Riverside concert",
		Location:  application.LocationInput{Address: "Osaka Station"},
		Schedule: application.ScheduleInput{
			Ranges:      []recurrence.Range{{Start: start, End: start.Add(2 * time.Hour)}},
			Repeat:      true,
			Every:       1,
			Occurrences: 2,
			Capacity:    []int{40},
			Rates:       []materialize.Rate{{Title: "Standing", Amount: 2500, Currency: "JPY"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if event.Header.ID != "id-1" || event.Header.Address != "Osaka Station, Kita" {
		t.Fatalf("unexpected header %+v", event.Header)
	}

	stored, err := env.harness.Events.GetEvent(ctx, event.Header.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if len(stored.Lines) != 2 || len(stored.Rates) != 2 {
		t.Fatalf("expected 2 lines and 2 rates, got %d and %d", len(stored.Lines), len(stored.Rates))
	}
	if !stored.Lines[1].Start.Equal(start.AddDate(0, 0, 7)) {
		t.Fatalf("expected weekly repeat, got %v", stored.Lines[1].Start)
	}
	if stored.Lines[0].Capacity != 40 {
		t.Fatalf("expected broadcast capacity, got %d", stored.Lines[0].Capacity)
	}

	results, err := env.events.Nearby(ctx, application.NearbyParams{Latitude: 34.70, Longitude: 135.50, RadiusKm: 3, From: ReferenceTime()})
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	if len(results) != 2 || results[0].Header.ID != event.Header.ID {
		t.Fatalf("unexpected nearby results %+v", results)
	}
}

func TestChangeService_ProposeAndConfirmAgainstSQLite(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	fixture := NewEventFixture(env.owner.ID)
	env.harness.SeedEvent(fixture)

	proposal, err := env.changes.Propose(ctx, env.owner.Principal(), changes.Request{
		HeaderID: fixture.HeaderID,
		Header:   changes.Fields{"title": "Renamed fair"},
		Lines:    []changes.LineUpdate{{ID: fixture.LineID(0), Fields: changes.Fields{"capacity": 25}}},
		Rates:    []changes.RateUpdate{{ID: fixture.RateID(1), Fields: changes.Fields{"amount": 800}}},
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(changes.Successes(proposal.Records)) != 3 {
		t.Fatalf("expected 3 tracked changes, got %+v", proposal.Records)
	}

	before, _ := env.harness.Events.GetEvent(ctx, fixture.HeaderID)
	if before.Header.Title != fixture.Title {
		t.Fatal("proposing must not write the event")
	}

	confirmed, err := env.changes.Confirm(ctx, env.owner.Principal(), proposal.ID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if confirmed.State != changes.StateConfirmed {
		t.Fatalf("expected confirmed state, got %s", confirmed.State)
	}

	after, err := env.harness.Events.GetEvent(ctx, fixture.HeaderID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if after.Header.Title != "Renamed fair" || after.Lines[0].Capacity != 25 || after.Rates[1].Amount != 800 {
		t.Fatalf("changes not applied: %+v", after)
	}

	sent := env.notifier.Notifications()
	if len(sent) != 1 || sent[0].To.Email != env.owner.Email || sent[0].Title != "Renamed fair" {
		t.Fatalf("unexpected notifications %+v", sent)
	}

	if _, err := env.changes.Confirm(ctx, env.owner.Principal(), proposal.ID); !errors.Is(err, application.ErrConflict) {
		t.Fatalf("expected ErrConflict on second confirm, got %v", err)
	}
}

func TestChangeService_ExpiryAndStalenessAgainstSQLite(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	fixture := NewEventFixture(env.owner.ID)
	env.harness.SeedEvent(fixture)
	principal := env.owner.Principal()

	capacity := func(n int) changes.Request {
		return changes.Request{
			HeaderID: fixture.HeaderID,
			Lines:    []changes.LineUpdate{{ID: fixture.LineID(1), Fields: changes.Fields{"capacity": n}}},
		}
	}

	t.Run("confirming a superseded proposal conflicts", func(t *testing.T) {
		first, err := env.changes.Propose(ctx, principal, capacity(12))
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		second, err := env.changes.Propose(ctx, principal, capacity(20))
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		if _, err := env.changes.Confirm(ctx, principal, second.ID); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if _, err := env.changes.Confirm(ctx, principal, first.ID); !errors.Is(err, application.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		stored, err := env.harness.Proposals.GetProposal(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetProposal failed: %v", err)
		}
		if stored.State != string(changes.StateDiscarded) {
			t.Fatalf("expected stale proposal to be discarded, got %s", stored.State)
		}
	})

	t.Run("expired proposals cannot be confirmed", func(t *testing.T) {
		proposal, err := env.changes.Propose(ctx, principal, capacity(30))
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		env.factory.Clock.Advance(31 * time.Minute)

		if _, err := env.changes.Confirm(ctx, principal, proposal.ID); !errors.Is(err, application.ErrProposalExpired) {
			t.Fatalf("expected ErrProposalExpired, got %v", err)
		}
		event, _ := env.harness.Events.GetEvent(ctx, fixture.HeaderID)
		if event.Lines[1].Capacity != 20 {
			t.Fatalf("expired proposal must not apply, capacity is %d", event.Lines[1].Capacity)
		}
	})

	t.Run("the sweep discards open proposals past expiry", func(t *testing.T) {
		if _, err := env.changes.Propose(ctx, principal, capacity(35)); err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		env.factory.Clock.Advance(time.Hour)

		n, err := env.changes.ExpireProposals(ctx)
		if err != nil {
			t.Fatalf("ExpireProposals failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 expired proposal, got %d", n)
		}
	})
}
