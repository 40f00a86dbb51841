// Package sweeper runs the periodic cleanup of stale proposals and sessions.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ProposalExpirer discards open proposals past their expiry.
type ProposalExpirer interface {
	ExpireProposals(ctx context.Context) (int64, error)
}

// SessionPurger deletes expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Result reports what one sweep removed.
type Result struct {
	ExpiredProposals int64
	PurgedSessions   int64
}

// Sweeper runs a sweep on a cron schedule. Overlapping runs are skipped.
type Sweeper struct {
	cron      *cron.Cron
	proposals ProposalExpirer
	sessions  SessionPurger
	timeout   time.Duration
	logger    *slog.Logger
}

// New parses schedule (standard five field cron or a descriptor such as
// "@every 5m") and registers the sweep. Call Start to begin running.
func New(schedule string, proposals ProposalExpirer, sessions SessionPurger, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		proposals: proposals,
		sessions:  sessions,
		timeout:   time.Minute,
		logger:    logger.With("component", "sweeper"),
	}

	cronLogger := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.logger.Info("sweeper started")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep or ctx, whichever
// finishes first.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce performs a single sweep. Both tasks run even when the first fails.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var (
		result Result
		errs   []error
	)
	if s.proposals != nil {
		n, err := s.proposals.ExpireProposals(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire proposals: %w", err))
		}
		result.ExpiredProposals = n
	}
	if s.sessions != nil {
		n, err := s.sessions.PurgeExpiredSessions(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge sessions: %w", err))
		}
		result.PurgedSessions = n
	}

	err := errors.Join(errs...)
	logger := s.logger.With("expired_proposals", result.ExpiredProposals, "purged_sessions", result.PurgedSessions)
	if err != nil {
		logger.ErrorContext(ctx, "sweep failed", "error", err)
		return result, err
	}
	logger.DebugContext(ctx, "sweep completed")
	return result, nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
