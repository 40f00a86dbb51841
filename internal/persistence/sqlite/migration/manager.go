package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager brings a database up to the latest migration.
type Manager struct {
	source   Source
	executor Executor
	logger   *slog.Logger
}

// NewManager wires a manager. A nil logger falls back to slog.Default.
func NewManager(source Source, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration in version order and returns how many
// were applied. It stops at the first failure.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)
	for i, migration := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.FilePath,
				"error", err,
			)
			return i, NewMigrationError(migration.Version, migration.FilePath, "apply", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
	}

	m.logger.InfoContext(ctx, "migrations complete",
		"applied", len(status.Pending),
		"version", status.Pending[len(status.Pending)-1].Version,
		"duration", time.Since(started),
	)
	return len(status.Pending), nil
}

// Status compares the available files with the recorded versions. Gaps in
// the file sequence, recorded versions without a file and edited files are
// reported as errors.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := m.source.Scan()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.AppliedVersions(ctx)
	if err != nil {
		return Status{}, err
	}
	if err := validateSequence(available, applied); err != nil {
		return Status{}, err
	}

	recorded := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		recorded[versionNumber(am.Version)] = am
	}

	status := Status{Applied: applied}
	for _, migration := range available {
		am, ok := recorded[versionNumber(migration.Version)]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if am.Checksum != "" && am.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	known := make(map[int]bool, len(available))
	for i, migration := range available {
		n := versionNumber(migration.Version)
		if n < 0 {
			return NewMigrationError(migration.Version, migration.FilePath, "validate sequence", ErrInvalidVersion)
		}
		if i > 0 && n != versionNumber(available[i-1].Version)+1 {
			return fmt.Errorf("%w: missing migration version %03d", ErrVersionConflict, versionNumber(available[i-1].Version)+1)
		}
		known[n] = true
	}
	for _, am := range applied {
		if !known[versionNumber(am.Version)] {
			return fmt.Errorf("%w: applied migration %s has no file", ErrVersionConflict, am.Version)
		}
	}
	return nil
}
