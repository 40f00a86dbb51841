package migration

import (
	"context"
	"time"
)

// Migration is one versioned SQL file.
type Migration struct {
	Version     string
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises the applied and pending migrations.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Source lists the available migrations in version order.
type Source interface {
	Scan() ([]Migration, error)
}

// Executor runs migrations against a database.
type Executor interface {
	// InitializeVersionTable creates schema_migrations when missing.
	InitializeVersionTable(ctx context.Context) error
	// Apply runs every statement of migration and records it in one transaction.
	Apply(ctx context.Context, migration Migration) (time.Duration, error)
	// AppliedVersions returns the recorded migrations in version order.
	AppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
