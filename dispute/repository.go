package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx implementation of dispute persistence.
type Repository struct {
	pool  *pgxpool.Pool
	idGen func() string
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:  pool,
		idGen: func() string { return uuid.NewString() },
	}
}

const disputeColumns = `id, check_id, raised_by, comment, state::text, accepted, resolved_status, resolved_by, created_at, updated_at, resolved_at`

func scanDispute(row pgx.Row) (Record, error) {
	var d Record
	err := row.Scan(
		&d.ID,
		&d.CheckID,
		&d.RaisedBy,
		&d.Comment,
		&d.State,
		&d.Accepted,
		&d.ResolvedStatus,
		&d.ResolvedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ResolvedAt,
	)
	return d, err
}

// Create inserts a dispute in the open state. The partial unique index on
// active disputes turns a concurrent second raise into ErrAlreadyOpen.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, checkID, raisedBy, comment string) (Record, error) {
	const query = `
		INSERT INTO disputes (id, check_id, raised_by, comment, state)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING ` + disputeColumns + `
	`

	d, err := scanDispute(tx.QueryRow(ctx, query, r.idGen(), checkID, raisedBy, comment))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyOpen
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return d, nil
}

// Escalate moves a freshly opened dispute into the admin queue.
func (r *Repository) Escalate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error) {
	const query = `
		UPDATE disputes
		SET state = 'escalated', updated_at = now()
		WHERE id = $1 AND state = 'open'
		RETURNING ` + disputeColumns + `
	`

	d, err := scanDispute(tx.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrInvalidTransition
		}
		return Record{}, fmt.Errorf("dispute: escalate: %w", err)
	}
	return d, nil
}

// GetForUpdate locks a dispute row inside the caller's transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error) {
	const query = `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`

	d, err := scanDispute(tx.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock dispute: %w", err)
	}
	return d, nil
}

// Resolve finalizes an escalated dispute.
func (r *Repository) Resolve(ctx context.Context, tx pgx.Tx, disputeID, resolvedBy, finalStatus string, accepted bool) (Record, error) {
	const query = `
		UPDATE disputes
		SET state = 'resolved',
		    accepted = $2,
		    resolved_status = $3,
		    resolved_by = $4,
		    resolved_at = now(),
		    updated_at = now()
		WHERE id = $1 AND state = 'escalated'
		RETURNING ` + disputeColumns + `
	`

	d, err := scanDispute(tx.QueryRow(ctx, query, disputeID, accepted, finalStatus, resolvedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrInvalidTransition
		}
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}
	return d, nil
}

// GetByID fetches a dispute outside any transaction.
func (r *Repository) GetByID(ctx context.Context, disputeID string) (Record, error) {
	const query = `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`

	d, err := scanDispute(r.pool.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get by id: %w", err)
	}
	return d, nil
}

// ListForCheck returns a check's disputes, newest first.
func (r *Repository) ListForCheck(ctx context.Context, checkID string) ([]Record, error) {
	const query = `
		SELECT ` + disputeColumns + `
		FROM disputes
		WHERE check_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, checkID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list for check: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}
