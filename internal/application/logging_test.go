package application

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/event-board/internal/recurrence"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                 nil,
		"forbidden":        ErrForbidden,
		"not_found":        fmt.Errorf("wrapped: %w", ErrNotFound),
		"conflict":         fmt.Errorf("%w: proposal already resolved", ErrConflict),
		"proposal_expired": ErrProposalExpired,
		"session_revoked":  ErrSessionRevoked,
		"validation":       fieldError("title", "title is required"),
		"unexpected":       fmt.Errorf("disk full"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}

	if got := ErrorKind(fmt.Errorf("expand: %w", &recurrence.ModeError{Every: 7})); got != "validation" {
		t.Fatalf("expected mode errors to count as validation, got %q", got)
	}
}
