package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error)
}

// EventRepository stores headers together with their lines and rates.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetHeader(ctx context.Context, id string) (EventHeader, error)
	GetLine(ctx context.Context, id string) (EventLine, error)
	GetRate(ctx context.Context, id string) (EventRate, error)
	GetEvent(ctx context.Context, headerID string) (Event, error)
	ListHeadersByOwner(ctx context.Context, ownerID string) ([]EventHeader, error)
	SearchLines(ctx context.Context, query NearbyQuery) ([]NearbyLine, error)
	ApplyEventChanges(ctx context.Context, changes EventChanges) error
	DeleteEvent(ctx context.Context, headerID string) error
}

// ProposalRepository stores change proposals between propose and confirm.
type ProposalRepository interface {
	CreateProposal(ctx context.Context, proposal ChangeProposal) error
	GetProposal(ctx context.Context, id string) (ChangeProposal, error)
	// TransitionProposal writes proposal only when the stored state still
	// equals from.
	TransitionProposal(ctx context.Context, proposal ChangeProposal, from string) error
	ExpireProposals(ctx context.Context, reference time.Time, discarded string) (int64, error)
}
