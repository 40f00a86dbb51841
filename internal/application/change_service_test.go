package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/notify"
	"github.com/example/event-board/internal/persistence"
)

type changeFixture struct {
	svc       *ChangeService
	events    *eventRepositoryStub
	proposals *proposalRepositoryStub
	notifier  *notifierStub
	now       *time.Time
}

func newChangeFixture(t *testing.T) *changeFixture {
	t.Helper()

	now := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	f := &changeFixture{
		events:    newEventRepositoryStub(),
		proposals: newProposalRepositoryStub(),
		notifier:  &notifierStub{},
		now:       &now,
	}
	f.events.events["h1"] = sampleEvent()
	users := &userRepositoryStub{users: map[string]User{"owner-1": {ID: "owner-1", Email: "owner@example.com", DisplayName: "Owner"}}}
	tracker := changes.NewTracker(f.events, nil, changes.Config{})
	f.svc = NewChangeService(f.events, f.proposals, tracker, users, f.notifier, sequence("p1", "p2"), func() time.Time { return *f.now }, ChangeConfig{ProposalTTL: 10 * time.Minute})
	return f
}

func (f *changeFixture) propose(t *testing.T, title string) changes.Proposal {
	t.Helper()
	proposal, err := f.svc.Propose(context.Background(), Principal{UserID: "owner-1"}, changes.Request{
		HeaderID: "h1",
		Header:   changes.Fields{"title": title},
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	return proposal
}

func TestChangeService_Propose(t *testing.T) {
	t.Parallel()

	t.Run("stores the tracked records without applying them", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")

		if proposal.State != changes.StateProposed || proposal.ID != "p1" {
			t.Fatalf("unexpected proposal %+v", proposal)
		}
		if len(proposal.Records) != 1 || proposal.Records[0].Old != "Fair" || proposal.Records[0].New != "Renamed" {
			t.Fatalf("unexpected records %+v", proposal.Records)
		}
		if !proposal.ExpiresAt.Equal(f.now.Add(10 * time.Minute)) {
			t.Fatalf("unexpected expiry %s", proposal.ExpiresAt)
		}
		if _, ok := f.proposals.stored["p1"]; !ok {
			t.Fatal("proposal was not stored")
		}
		if f.events.events["h1"].Header.Title != "Fair" {
			t.Fatal("proposal must not modify the event")
		}
	})

	t.Run("rejects other users", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		_, err := f.svc.Propose(context.Background(), Principal{UserID: "intruder"}, changes.Request{HeaderID: "h1", Header: changes.Fields{"title": "x"}})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("reports unknown events", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		_, err := f.svc.Propose(context.Background(), Principal{UserID: "owner-1"}, changes.Request{HeaderID: "missing", Header: changes.Fields{"title": "x"}})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires at least one field", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		_, err := f.svc.Propose(context.Background(), Principal{UserID: "owner-1"}, changes.Request{HeaderID: "h1"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestChangeService_Confirm(t *testing.T) {
	t.Parallel()

	owner := Principal{UserID: "owner-1"}

	t.Run("applies changes and notifies the owner", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")

		confirmed, err := f.svc.Confirm(context.Background(), owner, proposal.ID)
		if err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if confirmed.State != changes.StateConfirmed {
			t.Fatalf("expected confirmed state, got %s", confirmed.State)
		}
		if len(f.events.applied) != 1 {
			t.Fatalf("expected one write, got %d", len(f.events.applied))
		}
		write := f.events.applied[0]
		if write.Header == nil || write.Header.Title != "Renamed" {
			t.Fatalf("unexpected header write %+v", write.Header)
		}
		if write.PreviousState != string(changes.StateProposed) || write.Proposal.State != string(changes.StateConfirmed) {
			t.Fatalf("unexpected proposal write %+v", write.Proposal)
		}
		if f.notifier.calls != 1 || f.notifier.to.Email != "owner@example.com" || f.notifier.title != "Renamed" {
			t.Fatalf("unexpected notification %+v", f.notifier)
		}
	})

	t.Run("discards expired proposals", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")
		*f.now = f.now.Add(11 * time.Minute)

		if _, err := f.svc.Confirm(context.Background(), owner, proposal.ID); !errors.Is(err, ErrProposalExpired) {
			t.Fatalf("expected ErrProposalExpired, got %v", err)
		}
		if f.proposals.stored["p1"].State != string(changes.StateDiscarded) {
			t.Fatalf("expected discarded proposal, got %s", f.proposals.stored["p1"].State)
		}
		if len(f.events.applied) != 0 {
			t.Fatal("expired proposal must not be applied")
		}
	})

	t.Run("discards proposals whose records went stale", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")
		event := f.events.events["h1"]
		event.Header.Title = "Edited elsewhere"
		f.events.events["h1"] = event

		if _, err := f.svc.Confirm(context.Background(), owner, proposal.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if f.proposals.stored["p1"].State != string(changes.StateDiscarded) {
			t.Fatalf("expected discarded proposal, got %s", f.proposals.stored["p1"].State)
		}
	})

	t.Run("rejects proposals that are already resolved", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")
		if _, err := f.svc.Discard(context.Background(), owner, proposal.ID); err != nil {
			t.Fatalf("Discard failed: %v", err)
		}

		if _, err := f.svc.Confirm(context.Background(), owner, proposal.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("maps lost races to conflicts", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")
		f.events.applyErr = persistence.ErrStateConflict

		if _, err := f.svc.Confirm(context.Background(), owner, proposal.ID); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if f.notifier.calls != 0 {
			t.Fatal("no notification expected after a failed write")
		}
	})

	t.Run("still succeeds when notification fails", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		f.notifier.err = errors.New("smtp down")
		proposal := f.propose(t, "Renamed")

		if _, err := f.svc.Confirm(context.Background(), owner, proposal.ID); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
	})

	t.Run("hides proposals from other users", func(t *testing.T) {
		t.Parallel()

		f := newChangeFixture(t)
		proposal := f.propose(t, "Renamed")

		if _, err := f.svc.Confirm(context.Background(), Principal{UserID: "intruder"}, proposal.ID); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestChangeService_ExpireProposals(t *testing.T) {
	t.Parallel()

	f := newChangeFixture(t)
	f.propose(t, "Renamed")
	*f.now = f.now.Add(time.Hour)

	expired, err := f.svc.ExpireProposals(context.Background())
	if err != nil {
		t.Fatalf("ExpireProposals failed: %v", err)
	}
	if expired != 1 || f.proposals.stored["p1"].State != string(changes.StateDiscarded) {
		t.Fatalf("expected the open proposal to be discarded, got %d %+v", expired, f.proposals.stored["p1"])
	}
}

// proposalRepositoryStub implements ProposalRepository for tests.
type proposalRepositoryStub struct {
	stored map[string]persistence.ChangeProposal
}

func newProposalRepositoryStub() *proposalRepositoryStub {
	return &proposalRepositoryStub{stored: map[string]persistence.ChangeProposal{}}
}

func (s *proposalRepositoryStub) CreateProposal(ctx context.Context, proposal persistence.ChangeProposal) error {
	if _, ok := s.stored[proposal.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.stored[proposal.ID] = proposal
	return nil
}

func (s *proposalRepositoryStub) GetProposal(ctx context.Context, id string) (persistence.ChangeProposal, error) {
	proposal, ok := s.stored[id]
	if !ok {
		return persistence.ChangeProposal{}, persistence.ErrNotFound
	}
	return proposal, nil
}

func (s *proposalRepositoryStub) TransitionProposal(ctx context.Context, proposal persistence.ChangeProposal, from string) error {
	current, ok := s.stored[proposal.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if current.State != from {
		return persistence.ErrStateConflict
	}
	s.stored[proposal.ID] = proposal
	return nil
}

func (s *proposalRepositoryStub) ExpireProposals(ctx context.Context, reference time.Time, discarded string) (int64, error) {
	var n int64
	for id, proposal := range s.stored {
		if proposal.State == string(changes.StateProposed) && !reference.Before(proposal.ExpiresAt) {
			proposal.State = discarded
			resolved := reference
			proposal.ResolvedAt = &resolved
			s.stored[id] = proposal
			n++
		}
	}
	return n, nil
}

// notifierStub implements ChangeNotifier for tests.
type notifierStub struct {
	calls int
	to    notify.Recipient
	title string
	err   error
}

func (n *notifierStub) NotifyEventChanged(ctx context.Context, to notify.Recipient, eventTitle string, summary changes.Summary) error {
	n.calls++
	n.to = to
	n.title = eventTitle
	return n.err
}
