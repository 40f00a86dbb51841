package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/event-board/internal/application"
)

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(principal.UserID))
	})
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	handler := RequireSession(fakeValidator{}, quietLogger())(principalEcho())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_REQUIRED"},
		{name: "wrong scheme", header: "Basic owner-token", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_REQUIRED"},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_REQUIRED"},
		{name: "revoked token", header: "Bearer revoked-token", wantStatus: http.StatusUnauthorized, wantCode: "AUTH_SESSION_EXPIRED"},
		{name: "valid token", header: "Bearer owner-token", wantStatus: http.StatusOK, wantBody: "owner-1"},
		{name: "scheme is case insensitive", header: "bearer other-token", wantStatus: http.StatusOK, wantBody: "other-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantCode != "" {
				if got := decodeError(t, rec).Error; got != tc.wantCode {
					t.Fatalf("expected code %s, got %s", tc.wantCode, got)
				}
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Fatalf("expected body %q, got %q", tc.wantBody, rec.Body.String())
			}
		})
	}
}

func TestOptionalSession(t *testing.T) {
	t.Parallel()

	handler := OptionalSession(fakeValidator{}, quietLogger())(principalEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous pass-through, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer owner-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "owner-1" {
		t.Fatalf("expected principal, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("rejects once the burst is spent", func(t *testing.T) {
		t.Parallel()

		handler := RateLimit(2, quietLogger())(principalEcho())
		call := func(addr string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec
		}

		for i := 0; i < 2; i++ {
			if rec := call("192.0.2.1:5000"); rec.Code != http.StatusNoContent {
				t.Fatalf("request %d: expected pass-through, got %d", i, rec.Code)
			}
		}
		rec := call("192.0.2.1:5001")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
		if code := decodeError(t, rec).Error; code != "RATE_LIMITED" {
			t.Fatalf("unexpected code %s", code)
		}
		if rec := call("192.0.2.2:5000"); rec.Code != http.StatusNoContent {
			t.Fatalf("other clients keep their own bucket, got %d", rec.Code)
		}
	})

	t.Run("non-positive limit disables limiting", func(t *testing.T) {
		t.Parallel()

		handler := RateLimit(0, quietLogger())(principalEcho())
		for i := 0; i < 20; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			if rec.Code != http.StatusNoContent {
				t.Fatalf("expected pass-through, got %d", rec.Code)
			}
		}
	})
}

func TestLimiterSet_DropsIdleClients(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	set := newLimiterSet(rate.Limit(1), 1, func() time.Time { return now })

	if !set.allow("a") || set.allow("a") {
		t.Fatal("expected a single token for client a")
	}

	now = now.Add(11 * time.Minute)
	set.allow("b")
	if _, ok := set.entries["a"]; ok {
		t.Fatal("expected idle client a to be dropped")
	}
	if len(set.entries) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(set.entries))
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Error("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	RequestLogger(logger)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	for _, want := range []string{`"request_id":1`, `"path":"/healthz"`, `"status":418`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output %s", want, out)
		}
	}
}

func TestHandlerLogger(t *testing.T) {
	t.Parallel()

	t.Run("request logger with principal", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		requestLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", 7)
		ctx := ContextWithLogger(context.Background(), requestLogger)
		ctx = ContextWithPrincipal(ctx, application.Principal{UserID: "owner-1", SessionID: "s1"})

		handlerLogger(ctx, nil, "EventHandler", "create", "header_id", "h1").Info("done")

		out := buf.String()
		for _, want := range []string{`"request_id":7`, `"handler":"EventHandler"`, `"operation":"create"`, `"user_id":"owner-1"`, `"session_id":"s1"`, `"header_id":"h1"`} {
			if !strings.Contains(out, want) {
				t.Fatalf("expected %s in log output %s", want, out)
			}
		}
	})

	t.Run("fallback without session", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		base := defaultLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

		handlerLogger(context.Background(), base, "UserHandler", "").Info("done")

		out := buf.String()
		if !strings.Contains(out, `"component":"http"`) || !strings.Contains(out, `"handler":"UserHandler"`) {
			t.Fatalf("unexpected log output %s", out)
		}
		if strings.Contains(out, "operation") || strings.Contains(out, "user_id") {
			t.Fatalf("unexpected attributes in %s", out)
		}
	})
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewRouter(RouterConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
