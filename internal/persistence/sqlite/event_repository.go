package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/event-board/internal/persistence"
)

const (
	headerColumns = `h.id, h.owner_id, h.title, h.description, h.category, h.latitude, h.longitude, h.address, h.img, h.img2, h.created_at, h.updated_at`
	lineColumns   = `l.id, l.header_id, l.start_at, l.end_at, l.is_public, l.capacity, l.created_at, l.updated_at`
	rateColumns   = `r.id, r.line_id, r.title, r.amount, r.currency, r.created_at, r.updated_at`
)

// EventRepository implements persistence.EventRepository using SQLite.
type EventRepository struct {
	pool *ConnectionPool
}

// NewEventRepository creates an event repository on pool.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{pool: pool}
}

// CreateEvent inserts the header with all of its lines and rates in one
// transaction. Nothing is written if any row is rejected.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.Header.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		h := event.Header
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_headers (id, owner_id, title, description, category, latitude, longitude, address, img, img2, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.OwnerID, h.Title, h.Description, h.Category, h.Latitude, h.Longitude, h.Address, h.Img, h.Img2,
			formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
		)
		if err != nil {
			return err
		}

		for _, l := range event.Lines {
			if l.HeaderID != h.ID {
				return persistence.ErrConstraintViolation
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO event_lines (id, header_id, start_at, end_at, is_public, capacity, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, l.HeaderID, formatTime(l.Start), formatTime(l.End), l.IsPublic, l.Capacity,
				formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
			)
			if err != nil {
				return err
			}
		}

		for _, rate := range event.Rates {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO event_rates (id, line_id, title, amount, currency, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rate.ID, rate.LineID, rate.Title, rate.Amount, rate.Currency,
				formatTime(rate.CreatedAt), formatTime(rate.UpdatedAt),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetHeader retrieves a header by ID.
func (r *EventRepository) GetHeader(ctx context.Context, id string) (persistence.EventHeader, error) {
	if id == "" {
		return persistence.EventHeader{}, persistence.ErrNotFound
	}
	return scanHeader(r.pool.DB().QueryRowContext(ctx, `SELECT `+headerColumns+` FROM event_headers h WHERE h.id = ?`, id))
}

// GetLine retrieves a line by ID.
func (r *EventRepository) GetLine(ctx context.Context, id string) (persistence.EventLine, error) {
	if id == "" {
		return persistence.EventLine{}, persistence.ErrNotFound
	}
	return scanLine(r.pool.DB().QueryRowContext(ctx, `SELECT `+lineColumns+` FROM event_lines l WHERE l.id = ?`, id))
}

// GetRate retrieves a rate by ID.
func (r *EventRepository) GetRate(ctx context.Context, id string) (persistence.EventRate, error) {
	if id == "" {
		return persistence.EventRate{}, persistence.ErrNotFound
	}
	return scanRate(r.pool.DB().QueryRowContext(ctx, `SELECT `+rateColumns+` FROM event_rates r WHERE r.id = ?`, id))
}

// GetEvent loads a header with its lines in start order and their rates in
// insertion order.
func (r *EventRepository) GetEvent(ctx context.Context, headerID string) (persistence.Event, error) {
	header, err := r.GetHeader(ctx, headerID)
	if err != nil {
		return persistence.Event{}, err
	}
	event := persistence.Event{Header: header}

	err = r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		lines, err := queryLines(ctx, tx, `SELECT `+lineColumns+` FROM event_lines l WHERE l.header_id = ? ORDER BY l.start_at, l.id`, headerID)
		if err != nil {
			return err
		}
		rates, err := queryRates(ctx, tx, `
			SELECT `+rateColumns+`
			FROM event_rates r
			JOIN event_lines l ON l.id = r.line_id
			WHERE l.header_id = ?
			ORDER BY l.start_at, l.id, r.rowid`, headerID)
		if err != nil {
			return err
		}
		event.Lines, event.Rates = lines, rates
		return nil
	})
	if err != nil {
		return persistence.Event{}, MapError(err)
	}
	return event, nil
}

// ListHeadersByOwner returns the headers of one owner, newest first.
func (r *EventRepository) ListHeadersByOwner(ctx context.Context, ownerID string) ([]persistence.EventHeader, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+headerColumns+`
		FROM event_headers h
		WHERE h.owner_id = ?
		ORDER BY h.created_at DESC, h.id`, ownerID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var headers []persistence.EventHeader
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, MapError(rows.Err())
}

// SearchLines returns lines whose header lies inside the query box and that
// end after EndsAfter, earliest start first.
func (r *EventRepository) SearchLines(ctx context.Context, query persistence.NearbyQuery) ([]persistence.NearbyLine, error) {
	stmt := `
		SELECT ` + headerColumns + `, ` + lineColumns + `
		FROM event_lines l
		JOIN event_headers h ON h.id = l.header_id
		WHERE h.latitude BETWEEN ? AND ?
		  AND h.longitude BETWEEN ? AND ?
		  AND l.end_at > ?`
	args := []any{query.MinLatitude, query.MaxLatitude, query.MinLongitude, query.MaxLongitude, formatTime(query.EndsAfter)}
	if query.PublicOnly {
		stmt += ` AND l.is_public = 1`
	}
	stmt += ` ORDER BY l.start_at, l.id`
	if query.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, query.Limit)
	}

	rows, err := r.pool.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []persistence.NearbyLine
	for rows.Next() {
		var (
			h                                persistence.EventHeader
			l                                persistence.EventLine
			hCreated, hUpdated               string
			lStart, lEnd, lCreated, lUpdated string
		)
		err := rows.Scan(
			&h.ID, &h.OwnerID, &h.Title, &h.Description, &h.Category, &h.Latitude, &h.Longitude, &h.Address, &h.Img, &h.Img2, &hCreated, &hUpdated,
			&l.ID, &l.HeaderID, &lStart, &lEnd, &l.IsPublic, &l.Capacity, &lCreated, &lUpdated,
		)
		if err != nil {
			return nil, MapError(err)
		}
		if err := parseTimes(
			timeField{"created_at", hCreated, &h.CreatedAt},
			timeField{"updated_at", hUpdated, &h.UpdatedAt},
			timeField{"start_at", lStart, &l.Start},
			timeField{"end_at", lEnd, &l.End},
			timeField{"created_at", lCreated, &l.CreatedAt},
			timeField{"updated_at", lUpdated, &l.UpdatedAt},
		); err != nil {
			return nil, err
		}
		out = append(out, persistence.NearbyLine{Header: h, Line: l})
	}
	return out, MapError(rows.Err())
}

// ApplyEventChanges writes a confirmed proposal. The proposal row moves from
// PreviousState in the same transaction as the record updates, so a proposal
// confirmed concurrently elsewhere fails with persistence.ErrStateConflict and
// nothing is written.
func (r *EventRepository) ApplyEventChanges(ctx context.Context, changes persistence.EventChanges) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := transitionProposal(ctx, tx, changes.Proposal, changes.PreviousState); err != nil {
			return err
		}

		if h := changes.Header; h != nil {
			result, err := tx.ExecContext(ctx, `
				UPDATE event_headers
				SET title = ?, description = ?, category = ?, latitude = ?, longitude = ?, address = ?, img = ?, img2 = ?, updated_at = ?
				WHERE id = ?`,
				h.Title, h.Description, h.Category, h.Latitude, h.Longitude, h.Address, h.Img, h.Img2, formatTime(h.UpdatedAt), h.ID,
			)
			if err != nil {
				return err
			}
			if err := requireAffected(result); err != nil {
				return err
			}
		}

		for _, l := range changes.Lines {
			result, err := tx.ExecContext(ctx, `
				UPDATE event_lines
				SET start_at = ?, end_at = ?, is_public = ?, capacity = ?, updated_at = ?
				WHERE id = ? AND header_id = ?`,
				formatTime(l.Start), formatTime(l.End), l.IsPublic, l.Capacity, formatTime(l.UpdatedAt), l.ID, l.HeaderID,
			)
			if err != nil {
				return err
			}
			if err := requireAffected(result); err != nil {
				return err
			}
		}

		for _, rate := range changes.Rates {
			result, err := tx.ExecContext(ctx, `
				UPDATE event_rates
				SET title = ?, amount = ?, currency = ?, updated_at = ?
				WHERE id = ? AND line_id = ?`,
				rate.Title, rate.Amount, rate.Currency, formatTime(rate.UpdatedAt), rate.ID, rate.LineID,
			)
			if err != nil {
				return err
			}
			if err := requireAffected(result); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteEvent removes a header. Lines, rates and proposals cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, headerID string) error {
	if headerID == "" {
		return persistence.ErrNotFound
	}
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM event_headers WHERE id = ?`, headerID)
	if err != nil {
		return MapError(err)
	}
	return requireAffected(result)
}

func queryLines(ctx context.Context, q querier, stmt string, args ...any) ([]persistence.EventLine, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []persistence.EventLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func queryRates(ctx context.Context, q querier, stmt string, args ...any) ([]persistence.EventRate, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []persistence.EventRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func scanHeader(row rowScanner) (persistence.EventHeader, error) {
	var (
		h                    persistence.EventHeader
		createdAt, updatedAt string
	)
	err := row.Scan(&h.ID, &h.OwnerID, &h.Title, &h.Description, &h.Category, &h.Latitude, &h.Longitude, &h.Address, &h.Img, &h.Img2, &createdAt, &updatedAt)
	if err != nil {
		return persistence.EventHeader{}, MapError(err)
	}
	err = parseTimes(
		timeField{"created_at", createdAt, &h.CreatedAt},
		timeField{"updated_at", updatedAt, &h.UpdatedAt},
	)
	return h, err
}

func scanLine(row rowScanner) (persistence.EventLine, error) {
	var (
		l                                persistence.EventLine
		start, end, createdAt, updatedAt string
	)
	err := row.Scan(&l.ID, &l.HeaderID, &start, &end, &l.IsPublic, &l.Capacity, &createdAt, &updatedAt)
	if err != nil {
		return persistence.EventLine{}, MapError(err)
	}
	err = parseTimes(
		timeField{"start_at", start, &l.Start},
		timeField{"end_at", end, &l.End},
		timeField{"created_at", createdAt, &l.CreatedAt},
		timeField{"updated_at", updatedAt, &l.UpdatedAt},
	)
	return l, err
}

func scanRate(row rowScanner) (persistence.EventRate, error) {
	var (
		rate                 persistence.EventRate
		createdAt, updatedAt string
	)
	err := row.Scan(&rate.ID, &rate.LineID, &rate.Title, &rate.Amount, &rate.Currency, &createdAt, &updatedAt)
	if err != nil {
		return persistence.EventRate{}, MapError(err)
	}
	err = parseTimes(
		timeField{"created_at", createdAt, &rate.CreatedAt},
		timeField{"updated_at", updatedAt, &rate.UpdatedAt},
	)
	return rate, err
}

type timeField struct {
	column string
	value  string
	dest   *time.Time
}

func parseTimes(fields ...timeField) error {
	var errs []error
	for _, f := range fields {
		t, err := parseTime(f.column, f.value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dest = t
	}
	return errors.Join(errs...)
}
