package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/event-board/internal/persistence"
)

// State is the lifecycle position of a proposal.
type State string

const (
	StateProposed  State = "proposed"
	StateConfirmed State = "confirmed"
	StateDiscarded State = "discarded"
)

var (
	// ErrInvalidTransition is returned when a proposal leaves a final state.
	ErrInvalidTransition = errors.New("changes: invalid proposal transition")
	// ErrExpired is returned when confirming a proposal past its expiry.
	ErrExpired = errors.New("changes: proposal expired")
)

// Proposal is a tracked change list awaiting confirmation. Only Proposed
// proposals move, to Confirmed or Discarded.
type Proposal struct {
	ID         string
	HeaderID   string
	OwnerID    string
	State      State
	Records    []Record
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// Propose opens a proposal valid for ttl.
func Propose(id, headerID, ownerID string, records []Record, now time.Time, ttl time.Duration) Proposal {
	return Proposal{
		ID:        id,
		HeaderID:  headerID,
		OwnerID:   ownerID,
		State:     StateProposed,
		Records:   records,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether an open proposal has passed its expiry.
func (p Proposal) Expired(now time.Time) bool {
	return p.State == StateProposed && !now.Before(p.ExpiresAt)
}

// Confirm moves the proposal to Confirmed. An expired proposal is discarded
// instead and ErrExpired is returned.
func (p *Proposal) Confirm(now time.Time) error {
	if p.State != StateProposed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, StateConfirmed)
	}
	if p.Expired(now) {
		p.resolve(StateDiscarded, now)
		return ErrExpired
	}
	p.resolve(StateConfirmed, now)
	return nil
}

// Discard moves the proposal to Discarded.
func (p *Proposal) Discard(now time.Time) error {
	if p.State != StateProposed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, StateDiscarded)
	}
	p.resolve(StateDiscarded, now)
	return nil
}

func (p *Proposal) resolve(state State, now time.Time) {
	p.State = state
	resolved := now
	p.ResolvedAt = &resolved
}

// Summary aggregates the proposal's records.
func (p Proposal) Summary() Summary {
	return Aggregate(p.Records)
}

// ToPersistence encodes the proposal for storage.
func (p Proposal) ToPersistence() (persistence.ChangeProposal, error) {
	records := p.Records
	if records == nil {
		records = []Record{}
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return persistence.ChangeProposal{}, fmt.Errorf("encode change records: %w", err)
	}
	return persistence.ChangeProposal{
		ID:         p.ID,
		HeaderID:   p.HeaderID,
		OwnerID:    p.OwnerID,
		State:      string(p.State),
		Records:    encoded,
		CreatedAt:  p.CreatedAt,
		ExpiresAt:  p.ExpiresAt,
		ResolvedAt: p.ResolvedAt,
	}, nil
}

// ProposalFromPersistence decodes a stored proposal.
func ProposalFromPersistence(stored persistence.ChangeProposal) (Proposal, error) {
	var records []Record
	if len(stored.Records) > 0 {
		if err := json.Unmarshal(stored.Records, &records); err != nil {
			return Proposal{}, fmt.Errorf("decode change records: %w", err)
		}
	}
	switch State(stored.State) {
	case StateProposed, StateConfirmed, StateDiscarded:
	default:
		return Proposal{}, fmt.Errorf("unknown proposal state %q", stored.State)
	}
	return Proposal{
		ID:         stored.ID,
		HeaderID:   stored.HeaderID,
		OwnerID:    stored.OwnerID,
		State:      State(stored.State),
		Records:    records,
		CreatedAt:  stored.CreatedAt,
		ExpiresAt:  stored.ExpiresAt,
		ResolvedAt: stored.ResolvedAt,
	}, nil
}
