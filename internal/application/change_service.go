package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/notify"
	"github.com/example/event-board/internal/persistence"
)

// ChangeRepository reads the records a proposal is tracked against and writes
// confirmed changes.
type ChangeRepository interface {
	changes.Source
	GetEvent(ctx context.Context, headerID string) (persistence.Event, error)
	ApplyEventChanges(ctx context.Context, changes persistence.EventChanges) error
}

// ProposalRepository stores proposals between the two phases.
type ProposalRepository interface {
	CreateProposal(ctx context.Context, proposal persistence.ChangeProposal) error
	GetProposal(ctx context.Context, id string) (persistence.ChangeProposal, error)
	TransitionProposal(ctx context.Context, proposal persistence.ChangeProposal, from string) error
	ExpireProposals(ctx context.Context, reference time.Time, discarded string) (int64, error)
}

// UserDirectory resolves the recipient of change notifications.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// ChangeNotifier tells an owner that confirmed changes were applied.
type ChangeNotifier interface {
	NotifyEventChanged(ctx context.Context, to notify.Recipient, eventTitle string, summary changes.Summary) error
}

// ChangeConfig carries proposal settings.
type ChangeConfig struct {
	ProposalTTL time.Duration
}

// ChangeService runs the propose then confirm flow for event updates.
type ChangeService struct {
	events      ChangeRepository
	proposals   ProposalRepository
	tracker     *changes.Tracker
	users       UserDirectory
	notifier    ChangeNotifier
	idGenerator func() string
	now         func() time.Time
	ttl         time.Duration
	logger      *slog.Logger
}

// NewChangeService wires dependencies for the change service.
func NewChangeService(events ChangeRepository, proposals ProposalRepository, tracker *changes.Tracker, users UserDirectory, notifier ChangeNotifier, idGenerator func() string, now func() time.Time, cfg ChangeConfig) *ChangeService {
	return NewChangeServiceWithLogger(events, proposals, tracker, users, notifier, idGenerator, now, cfg, nil)
}

// NewChangeServiceWithLogger wires dependencies for the change service with a logger.
func NewChangeServiceWithLogger(events ChangeRepository, proposals ProposalRepository, tracker *changes.Tracker, users UserDirectory, notifier ChangeNotifier, idGenerator func() string, now func() time.Time, cfg ChangeConfig, logger *slog.Logger) *ChangeService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	ttl := cfg.ProposalTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ChangeService{
		events:      events,
		proposals:   proposals,
		tracker:     tracker,
		users:       users,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		ttl:         ttl,
		logger:      defaultLogger(logger),
	}
}

func (s *ChangeService) ready() error {
	if s == nil {
		return fmt.Errorf("ChangeService is nil")
	}
	if s.events == nil || s.proposals == nil || s.tracker == nil {
		return fmt.Errorf("change service not configured")
	}
	return nil
}

// Propose tracks req against the stored event and stores the resulting
// change list. Nothing is applied until the proposal is confirmed.
func (s *ChangeService) Propose(ctx context.Context, principal Principal, req changes.Request) (proposal changes.Proposal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "ChangeService", "Propose", "principal_id", principal.UserID, "event_id", req.HeaderID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to propose changes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"proposal_id", proposal.ID,
			"records", len(proposal.Records),
			"successes", len(changes.Successes(proposal.Records)),
		).InfoContext(ctx, "changes proposed")
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	req.HeaderID = strings.TrimSpace(req.HeaderID)
	if req.HeaderID == "" {
		err = fieldError("header_id", "header_id is required")
		return
	}
	if len(req.Header) == 0 && len(req.Lines) == 0 && len(req.Rates) == 0 {
		err = fieldError("changes", "at least one header, line or rate field is required")
		return
	}

	var header persistence.EventHeader
	header, err = s.events.GetHeader(ctx, req.HeaderID)
	if err != nil {
		if isNotFound(err) {
			err = ErrNotFound
		}
		return
	}
	if !canManage(principal, header) {
		err = ErrForbidden
		return
	}

	var records []changes.Record
	records, err = s.tracker.Track(ctx, req)
	if err != nil {
		return
	}

	candidate := changes.Propose(s.idGenerator(), header.ID, header.OwnerID, records, s.now(), s.ttl)
	var stored persistence.ChangeProposal
	stored, err = candidate.ToPersistence()
	if err != nil {
		return
	}
	if err = s.proposals.CreateProposal(ctx, stored); err != nil {
		return
	}
	proposal = candidate
	return
}

// GetProposal returns a stored proposal to its owner or an administrator.
func (s *ChangeService) GetProposal(ctx context.Context, principal Principal, id string) (changes.Proposal, error) {
	if err := s.ready(); err != nil {
		return changes.Proposal{}, err
	}
	return s.load(ctx, principal, id)
}

// Confirm applies the success records of a proposal in one write and
// notifies the owner. The proposal must still be open and unexpired, and
// every old value must still match the stored record.
func (s *ChangeService) Confirm(ctx context.Context, principal Principal, id string) (proposal changes.Proposal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "ChangeService", "Confirm", "principal_id", principal.UserID, "proposal_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm changes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "changes confirmed", "event_id", proposal.HeaderID)
	}()

	proposal, err = s.load(ctx, principal, id)
	if err != nil {
		return
	}

	now := s.now()
	open := proposal
	if confirmErr := proposal.Confirm(now); confirmErr != nil {
		switch {
		case errors.Is(confirmErr, changes.ErrExpired):
			if persistErr := s.transition(ctx, proposal); persistErr != nil {
				logger.WarnContext(ctx, "failed to discard expired proposal", "error", persistErr)
			}
			err = ErrProposalExpired
		case errors.Is(confirmErr, changes.ErrInvalidTransition):
			err = fmt.Errorf("%w: %v", ErrConflict, confirmErr)
		default:
			err = confirmErr
		}
		return
	}

	var event persistence.Event
	event, err = s.events.GetEvent(ctx, proposal.HeaderID)
	if err != nil {
		if isNotFound(err) {
			err = ErrNotFound
		}
		return
	}

	target := changes.NewTarget(event)
	if applyErr := target.Apply(proposal.Records, now); applyErr != nil {
		if !errors.Is(applyErr, changes.ErrStale) {
			err = applyErr
			return
		}
		if discardErr := open.Discard(now); discardErr == nil {
			if persistErr := s.transition(ctx, open); persistErr != nil {
				logger.WarnContext(ctx, "failed to discard stale proposal", "error", persistErr)
			}
		}
		proposal = open
		err = fmt.Errorf("%w: %v", ErrConflict, applyErr)
		return
	}

	header, lines, rates := target.Changed()
	var stored persistence.ChangeProposal
	stored, err = proposal.ToPersistence()
	if err != nil {
		return
	}
	err = s.events.ApplyEventChanges(ctx, persistence.EventChanges{
		Header:        header,
		Lines:         lines,
		Rates:         rates,
		Proposal:      stored,
		PreviousState: string(changes.StateProposed),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrStateConflict) {
			err = fmt.Errorf("%w: proposal already resolved", ErrConflict)
		}
		return
	}

	title := event.Header.Title
	if header != nil {
		title = header.Title
	}
	s.notifyOwner(ctx, logger, proposal, title)
	return
}

// Discard closes an open proposal without applying it.
func (s *ChangeService) Discard(ctx context.Context, principal Principal, id string) (proposal changes.Proposal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "ChangeService", "Discard", "principal_id", principal.UserID, "proposal_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to discard changes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "changes discarded")
	}()

	proposal, err = s.load(ctx, principal, id)
	if err != nil {
		return
	}
	if discardErr := proposal.Discard(s.now()); discardErr != nil {
		err = fmt.Errorf("%w: %v", ErrConflict, discardErr)
		return
	}
	err = s.transition(ctx, proposal)
	return
}

// ExpireProposals discards every open proposal past its expiry and returns
// how many were closed.
func (s *ChangeService) ExpireProposals(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.proposals.ExpireProposals(ctx, s.now(), string(changes.StateDiscarded))
}

func (s *ChangeService) load(ctx context.Context, principal Principal, id string) (changes.Proposal, error) {
	if principal.UserID == "" {
		return changes.Proposal{}, ErrUnauthorized
	}
	if strings.TrimSpace(id) == "" {
		return changes.Proposal{}, ErrNotFound
	}
	stored, err := s.proposals.GetProposal(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return changes.Proposal{}, ErrNotFound
		}
		return changes.Proposal{}, err
	}
	if stored.OwnerID != principal.UserID && !principal.IsAdmin {
		return changes.Proposal{}, ErrForbidden
	}
	return changes.ProposalFromPersistence(stored)
}

// transition persists a resolved proposal that was open when loaded.
func (s *ChangeService) transition(ctx context.Context, proposal changes.Proposal) error {
	stored, err := proposal.ToPersistence()
	if err != nil {
		return err
	}
	err = s.proposals.TransitionProposal(ctx, stored, string(changes.StateProposed))
	if errors.Is(err, persistence.ErrStateConflict) {
		return fmt.Errorf("%w: proposal already resolved", ErrConflict)
	}
	return err
}

func (s *ChangeService) notifyOwner(ctx context.Context, logger *slog.Logger, proposal changes.Proposal, title string) {
	if s.notifier == nil || s.users == nil {
		return
	}
	summary := changes.Aggregate(changes.Successes(proposal.Records))
	if summary.Empty() {
		return
	}
	owner, err := s.users.GetUser(ctx, proposal.OwnerID)
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve notification recipient", "error", err, "owner_id", proposal.OwnerID)
		return
	}
	recipient := notify.Recipient{Email: owner.Email, DisplayName: owner.DisplayName}
	if err := s.notifier.NotifyEventChanged(ctx, recipient, title, summary); err != nil {
		logger.WarnContext(ctx, "failed to send change notification", "error", err, "owner_id", proposal.OwnerID)
	}
}
