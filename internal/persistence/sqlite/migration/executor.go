package migration

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

const timeLayout = time.RFC3339Nano

// SQLiteExecutor applies migrations to a SQLite database.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor returns an executor bound to db.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations when missing.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return NewDatabaseError("", query, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs the statements of m and inserts its tracking row in the same
// transaction, so a failed file leaves neither schema changes nor a record.
func (e *SQLiteExecutor) Apply(ctx context.Context, m Migration) (elapsed time.Duration, err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return 0, NewMigrationError(m.Version, m.FilePath, "parse SQL", fmt.Errorf("%w: no statements", ErrInvalidMigrationFile))
	}

	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			err = NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), err)
			return 0, err
		}
	}

	elapsed = e.now().Sub(started)
	const record = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, record, m.Version, e.now().UTC().Format(timeLayout), m.Checksum, elapsed.Milliseconds()); err != nil {
		err = NewDatabaseError(m.Version, record, "record migration", err)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = NewDatabaseError(m.Version, "", "commit transaction", err)
		return 0, err
	}
	return elapsed, nil
}

// AppliedVersions returns every recorded migration in version order.
func (e *SQLiteExecutor) AppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	const query = `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError("", query, "list applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&am.Version, &appliedAt, &am.Checksum, &elapsedMs); err != nil {
			return nil, NewDatabaseError("", query, "scan applied version", err)
		}
		if am.AppliedAt, err = time.Parse(timeLayout, appliedAt); err != nil {
			return nil, NewDatabaseError(am.Version, query, "parse applied_at", err)
		}
		am.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", query, "iterate applied versions", err)
	}

	sort.Slice(applied, func(i, j int) bool {
		return versionNumber(applied[i].Version) < versionNumber(applied[j].Version)
	})
	return applied, nil
}
