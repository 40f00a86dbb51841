package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/persistence/sqlite"
	"github.com/example/event-board/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated file database in a test temp dir.
type SQLiteHarness struct {
	Storage   *sqlite.Storage
	Users     persistence.UserRepository
	Sessions  persistence.SessionRepository
	Events    persistence.EventRepository
	Proposals persistence.ProposalRepository

	tb testing.TB
}

// NewSQLiteHarness opens and migrates a fresh database. It is closed when the
// test finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	cfg := migration.DefaultSQLiteConfig(filepath.Join(tb.TempDir(), "eventboard.db"))
	storage, err := sqlite.Open(cfg)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Storage:   storage,
		Users:     storage,
		Sessions:  storage,
		Events:    storage,
		Proposals: storage,
		tb:        tb,
	}
}

// SeedUser stores the user fixture.
func (h *SQLiteHarness) SeedUser(user UserFixture) UserFixture {
	h.tb.Helper()
	if err := h.Users.CreateUser(context.Background(), user.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed user %s: %v", user.ID, err)
	}
	return user
}

// SeedEvent stores the event fixture with all its lines and rates.
func (h *SQLiteHarness) SeedEvent(event EventFixture) persistence.Event {
	h.tb.Helper()
	stored := event.Persistence()
	if err := h.Events.CreateEvent(context.Background(), stored); err != nil {
		h.tb.Fatalf("failed to seed event %s: %v", event.HeaderID, err)
	}
	return stored
}

// UserDirectory exposes the stored users to services that look up owners.
func (h *SQLiteHarness) UserDirectory() application.UserDirectory {
	return userDirectory{repo: h.Users}
}

type userDirectory struct {
	repo persistence.UserRepository
}

func (d userDirectory) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := d.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return application.User{
		ID:          stored.ID,
		Email:       stored.Email,
		DisplayName: stored.DisplayName,
		IsAdmin:     stored.IsAdmin,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   stored.UpdatedAt,
	}, nil
}
