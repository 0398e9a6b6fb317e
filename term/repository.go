package term

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStatusNotFound signals the requested unique status slug is not configured.
	ErrStatusNotFound = errors.New("term: unique status not found")
)

// Repository provides read access to the terms and unique_statuses reference
// tables. Both are edited out-of-band by admin tooling; the engine only reads.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListTerms returns all terms ordered by (priority, id).
func (r *Repository) ListTerms(ctx context.Context) ([]Term, error) {
	const query = `
		SELECT id, priority, cities, pipelines, statuses,
		       has_any_agent::text, assigned_to_requesting_agent::text,
		       assigned_to_other_agent::text, agency_status_assigned::text,
		       result_status, comment
		FROM terms
		ORDER BY priority, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("term: list terms: %w", err)
	}
	defer rows.Close()

	terms := make([]Term, 0, 16)
	for rows.Next() {
		var t Term
		if err := rows.Scan(
			&t.ID,
			&t.Priority,
			&t.Cities,
			&t.Pipelines,
			&t.Statuses,
			&t.HasAnyAgent,
			&t.AssignedToRequestingAgent,
			&t.AssignedToOtherAgent,
			&t.AgencyStatusAssigned,
			&t.ResultStatus,
			&t.Comment,
		); err != nil {
			return nil, fmt.Errorf("term: scan term: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("term: iterate terms: %w", err)
	}
	return terms, nil
}

// ListStatuses returns all configured unique statuses.
func (r *Repository) ListStatuses(ctx context.Context) ([]UniqueStatus, error) {
	const query = `
		SELECT id, slug, title, icon, button_slug
		FROM unique_statuses
		ORDER BY slug
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("term: list statuses: %w", err)
	}
	defer rows.Close()

	statuses := make([]UniqueStatus, 0, 8)
	for rows.Next() {
		var s UniqueStatus
		if err := rows.Scan(&s.ID, &s.Slug, &s.Title, &s.Icon, &s.ButtonSlug); err != nil {
			return nil, fmt.Errorf("term: scan status: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("term: iterate statuses: %w", err)
	}
	return statuses, nil
}

// GetStatusBySlug fetches a single unique status row.
func (r *Repository) GetStatusBySlug(ctx context.Context, slug string) (UniqueStatus, error) {
	const query = `
		SELECT id, slug, title, icon, button_slug
		FROM unique_statuses
		WHERE slug = $1
	`
	var s UniqueStatus
	if err := r.pool.QueryRow(ctx, query, slug).Scan(&s.ID, &s.Slug, &s.Title, &s.Icon, &s.ButtonSlug); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UniqueStatus{}, ErrStatusNotFound
		}
		return UniqueStatus{}, fmt.Errorf("term: get status %q: %w", slug, err)
	}
	return s, nil
}
