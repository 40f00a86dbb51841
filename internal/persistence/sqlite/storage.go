package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/event-board/internal/persistence"
	"github.com/example/event-board/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles every SQLite repository behind one handle.
type Storage struct {
	*UserRepository
	*SessionRepository
	*EventRepository
	*ProposalRepository

	pool *ConnectionPool
}

var (
	_ persistence.UserRepository     = (*Storage)(nil)
	_ persistence.SessionRepository  = (*Storage)(nil)
	_ persistence.EventRepository    = (*Storage)(nil)
	_ persistence.ProposalRepository = (*Storage)(nil)
)

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		UserRepository:     NewUserRepository(pool),
		SessionRepository:  NewSessionRepository(pool),
		EventRepository:    NewEventRepository(pool),
		ProposalRepository: NewProposalRepository(pool),
		pool:               pool,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
