package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/event-board/internal/persistence"
)

func TestUserRepository_CreateUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)

	user := persistence.User{
		ID:           "user-1",
		Email:        "  Alice@Example.com ",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		IsAdmin:      true,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	fetched, err := storage.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if fetched.ID != "user-1" || fetched.Email != "alice@example.com" || !fetched.IsAdmin {
		t.Fatalf("unexpected user %+v", fetched)
	}
	if !fetched.CreatedAt.Equal(baseTime) {
		t.Fatalf("expected created_at %s, got %s", baseTime, fetched.CreatedAt)
	}

	t.Run("rejects duplicate emails", func(t *testing.T) {
		dup := user
		dup.ID = "user-2"
		dup.Email = "alice@example.com"
		if err := storage.CreateUser(ctx, dup); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("requires a password hash", func(t *testing.T) {
		if err := storage.CreateUser(ctx, persistence.User{ID: "user-3", Email: "c@example.com"}); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestUserRepository_UpdateUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	user := seedUser(t, storage, "user-1", "alice@example.com")

	user.DisplayName = "Alice Updated"
	user.IsAdmin = true
	user.UpdatedAt = baseTime.Add(time.Minute)
	if err := storage.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	fetched, err := storage.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.DisplayName != "Alice Updated" || !fetched.IsAdmin || !fetched.UpdatedAt.Equal(user.UpdatedAt) {
		t.Fatalf("unexpected user after update %+v", fetched)
	}

	user.ID = "missing"
	if err := storage.UpdateUser(ctx, user); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_DeleteUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedUser(t, storage, "user-1", "alice@example.com")
	seedUser(t, storage, "user-2", "bob@example.com")
	if err := storage.CreateEvent(ctx, sampleEvent("h1", "user-2")); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if err := storage.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := storage.GetUser(ctx, "user-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := storage.DeleteUser(ctx, "user-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := storage.DeleteUser(ctx, "user-2"); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation for an owner of events, got %v", err)
	}
}
