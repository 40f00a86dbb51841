package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/event-board/internal/application"
)

// TokenValidator resolves a bearer token to a principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (application.Principal, error)
}

// RequireSession rejects requests without a valid access token and attaches
// the principal otherwise.
func RequireSession(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
				return
			}

			principal, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				responder.handleServiceError(r.Context(), w, sessionError(err))
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession attaches a principal when a valid token is present and lets
// anonymous requests through. A token that fails validation is rejected.
func OptionalSession(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	required := RequireSession(validator, logger)

	return func(next http.Handler) http.Handler {
		authenticated := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if extractTokenFromRequest(r) == "" {
				next.ServeHTTP(w, r)
				return
			}
			authenticated.ServeHTTP(w, r)
		})
	}
}

// sessionError keeps session specific errors and folds lookup misses into
// ErrUnauthorized so the response never reveals whether a session exists.
func sessionError(err error) error {
	switch {
	case errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked),
		errors.Is(err, application.ErrUnauthorized):
		return err
	case errors.Is(err, application.ErrNotFound):
		return application.ErrUnauthorized
	default:
		return err
	}
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RequestLogger assigns a request id and logs each request with its status
// and duration.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.written {
		s.status = status
		s.written = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.written = true
	return s.ResponseWriter.Write(b)
}

// RateLimit allows perMinute requests per client address with a burst of the
// same size. A non-positive perMinute disables limiting.
func RateLimit(perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	responder := newResponder(logger)
	limiters := newLimiterSet(rate.Limit(float64(perMinute)/60), perMinute, time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientAddress(r)) {
				w.Header().Set("Retry-After", "60")
				responder.writeError(r.Context(), w, http.StatusTooManyRequests, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client. Buckets idle for more than
// idleAfter are dropped on the next sweep.
type limiterSet struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	idleAfter time.Duration
	lastSweep time.Time
}

func newLimiterSet(limit rate.Limit, burst int, now func() time.Time) *limiterSet {
	return &limiterSet{
		entries:   make(map[string]*limiterEntry),
		limit:     limit,
		burst:     burst,
		now:       now,
		idleAfter: 10 * time.Minute,
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.idleAfter {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.idleAfter {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	entry, ok := s.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
