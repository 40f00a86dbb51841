package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/event-board/internal/persistence"
)

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool *ConnectionPool
}

// NewSessionRepository creates a session repository on pool.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// CreateSession stores a new session. Tokens are unique.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	session.Fingerprint = strings.TrimSpace(session.Fingerprint)
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	session = normalizeSession(session)

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		nullableTime(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, MapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by token.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)
	return scanSession(row)
}

// RevokeSession stamps the session as revoked and returns it. Revoking twice
// keeps the first timestamp.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var session persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		at := formatTime(revokedAt)
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = COALESCE(revoked_at, ?), updated_at = ?
			WHERE token = ?`,
			at, at, token,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		session, err = scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
		return err
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// DeleteExpiredSessions removes sessions that expired at or before reference
// and reports how many were removed.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.Fingerprint,
		&expiresAt,
		&revokedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, MapError(err)
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseNullableTime("revoked_at", revokedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

func normalizeSession(session persistence.Session) persistence.Session {
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session
}
