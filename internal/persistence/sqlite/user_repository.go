package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/event-board/internal/persistence"
)

const userColumns = `id, email, display_name, password_hash, is_admin, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool *ConnectionPool
}

// NewUserRepository creates a user repository on pool.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a new account. Emails are stored normalized and unique.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return MapError(err)
}

// UpdateUser overwrites the mutable fields of an account.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE users
		SET email = ?, display_name = ?, password_hash = ?, is_admin = ?, updated_at = ?
		WHERE id = ?`,
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return MapError(err)
	}
	return requireAffected(result)
}

// GetUser retrieves an account by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves an account by its normalized email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized)
	return scanUser(row)
}

// DeleteUser removes an account and its sessions. Accounts that still own
// events are refused with persistence.ErrForeignKeyViolation.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return MapError(err)
	}
	return requireAffected(result)
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsAdmin,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.User{}, MapError(err)
	}
	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// requireAffected turns a write that matched nothing into ErrNotFound.
func requireAffected(result rowsAffecter) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
