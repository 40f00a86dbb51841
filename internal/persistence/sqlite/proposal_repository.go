package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/event-board/internal/persistence"
)

const proposalColumns = `id, header_id, owner_id, state, records, created_at, expires_at, resolved_at`

// ProposalRepository implements persistence.ProposalRepository using SQLite.
type ProposalRepository struct {
	pool *ConnectionPool
}

// NewProposalRepository creates a proposal repository on pool.
func NewProposalRepository(pool *ConnectionPool) *ProposalRepository {
	return &ProposalRepository{pool: pool}
}

// CreateProposal stores a new proposal.
func (r *ProposalRepository) CreateProposal(ctx context.Context, proposal persistence.ChangeProposal) error {
	if proposal.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO change_proposals (`+proposalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		proposal.ID,
		proposal.HeaderID,
		proposal.OwnerID,
		proposal.State,
		string(proposal.Records),
		formatTime(proposal.CreatedAt),
		formatTime(proposal.ExpiresAt),
		nullableTime(proposal.ResolvedAt),
	)
	return MapError(err)
}

// GetProposal retrieves a proposal by ID.
func (r *ProposalRepository) GetProposal(ctx context.Context, id string) (persistence.ChangeProposal, error) {
	if id == "" {
		return persistence.ChangeProposal{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM change_proposals WHERE id = ?`, id)
	return scanProposal(row)
}

// TransitionProposal writes the state, records and resolution time of
// proposal when the stored state still equals from.
func (r *ProposalRepository) TransitionProposal(ctx context.Context, proposal persistence.ChangeProposal, from string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return transitionProposal(ctx, tx, proposal, from)
	})
}

// ExpireProposals moves every open proposal whose expiry is at or before
// reference into the discarded state.
func (r *ProposalRepository) ExpireProposals(ctx context.Context, reference time.Time, discarded string) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE change_proposals
		SET state = ?, resolved_at = ?
		WHERE state = 'proposed' AND expires_at <= ?`,
		discarded,
		formatTime(reference),
		formatTime(reference),
	)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// transitionProposal is shared with ApplyEventChanges so the proposal and the
// event rows move in one transaction.
func transitionProposal(ctx context.Context, q querier, proposal persistence.ChangeProposal, from string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE change_proposals
		SET state = ?, records = ?, resolved_at = ?
		WHERE id = ? AND state = ?`,
		proposal.State,
		string(proposal.Records),
		nullableTime(proposal.ResolvedAt),
		proposal.ID,
		from,
	)
	if err != nil {
		return err
	}
	err = requireAffected(result)
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM change_proposals WHERE id = ?`, proposal.ID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return persistence.ErrNotFound
	case err != nil:
		return err
	default:
		return persistence.ErrStateConflict
	}
}

func scanProposal(row rowScanner) (persistence.ChangeProposal, error) {
	var (
		p                             persistence.ChangeProposal
		records, createdAt, expiresAt string
		resolvedAt                    sql.NullString
	)
	err := row.Scan(&p.ID, &p.HeaderID, &p.OwnerID, &p.State, &records, &createdAt, &expiresAt, &resolvedAt)
	if err != nil {
		return persistence.ChangeProposal{}, MapError(err)
	}
	p.Records = []byte(records)
	if err := parseTimes(
		timeField{"created_at", createdAt, &p.CreatedAt},
		timeField{"expires_at", expiresAt, &p.ExpiresAt},
	); err != nil {
		return persistence.ChangeProposal{}, err
	}
	if p.ResolvedAt, err = parseNullableTime("resolved_at", resolvedAt); err != nil {
		return persistence.ChangeProposal{}, err
	}
	return p, nil
}
