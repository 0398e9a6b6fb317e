package check

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clientpin/term"
)

// Repository is the pgx implementation of check and history persistence.
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

const checkColumns = `id, client_id, result_status, matched_contact_id, fixed, created_at, updated_at`

func scanCheck(row pgx.Row) (Check, error) {
	var c Check
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.ResultStatus,
		&c.MatchedContactID,
		&c.Fixed,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// GetLiveForUpdate locks and returns the client's live check row. The row
// lock serializes concurrent evaluations of the same client.
func (r *Repository) GetLiveForUpdate(ctx context.Context, tx pgx.Tx, clientID string) (Check, error) {
	const query = `
		SELECT ` + checkColumns + `
		FROM checks
		WHERE client_id = $1
		ORDER BY fixed DESC, updated_at DESC
		LIMIT 1
		FOR UPDATE
	`

	c, err := scanCheck(tx.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrCheckNotFound
		}
		return Check{}, fmt.Errorf("check: load live check: %w", err)
	}
	return c, nil
}

// Insert creates a fresh check row. FOR UPDATE on zero rows locks nothing,
// so two first-time evaluations of the same client can both reach this
// insert; the partial unique index arbitrates and the loser lands its result
// on the winner's live row instead of surfacing a unique violation.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, params InsertCheckParams) (Check, error) {
	const query = `
		INSERT INTO checks (id, client_id, result_status, matched_contact_id, fixed)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (client_id) WHERE NOT fixed
		DO UPDATE SET result_status = EXCLUDED.result_status,
		              matched_contact_id = EXCLUDED.matched_contact_id,
		              updated_at = now()
		RETURNING ` + checkColumns + `
	`

	c, err := scanCheck(tx.QueryRow(ctx, query, r.idGen(), params.ClientID, params.ResultStatus, params.MatchedContactID))
	if err != nil {
		return Check{}, fmt.Errorf("check: insert: %w", err)
	}
	return c, nil
}

// UpdateResult overwrites the live check in place.
func (r *Repository) UpdateResult(ctx context.Context, tx pgx.Tx, checkID, resultStatus string, contactID *int64) (Check, error) {
	const query = `
		UPDATE checks
		SET result_status = $2,
		    matched_contact_id = $3,
		    updated_at = now()
		WHERE id = $1 AND NOT fixed
		RETURNING ` + checkColumns + `
	`

	c, err := scanCheck(tx.QueryRow(ctx, query, checkID, resultStatus, contactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrCheckNotFound
		}
		return Check{}, fmt.Errorf("check: update result: %w", err)
	}
	return c, nil
}

// GetByID fetches a check row outside any transaction.
func (r *Repository) GetByID(ctx context.Context, checkID string) (Check, error) {
	const query = `SELECT ` + checkColumns + ` FROM checks WHERE id = $1`

	c, err := scanCheck(r.pool.QueryRow(ctx, query, checkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrCheckNotFound
		}
		return Check{}, fmt.Errorf("check: get by id: %w", err)
	}
	return c, nil
}

// GetForUpdate locks a check row by id inside the caller's transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, checkID string) (Check, error) {
	const query = `SELECT ` + checkColumns + ` FROM checks WHERE id = $1 FOR UPDATE`

	c, err := scanCheck(tx.QueryRow(ctx, query, checkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrCheckNotFound
		}
		return Check{}, fmt.Errorf("check: lock check: %w", err)
	}
	return c, nil
}

// MarkFixed freezes a check with its adjudicated status. Only dispute
// resolution or an explicit administrative override reaches this.
func (r *Repository) MarkFixed(ctx context.Context, tx pgx.Tx, checkID, resultStatus string) (Check, error) {
	const query = `
		UPDATE checks
		SET result_status = $2,
		    fixed = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + checkColumns + `
	`

	c, err := scanCheck(tx.QueryRow(ctx, query, checkID, resultStatus))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrCheckNotFound
		}
		return Check{}, fmt.Errorf("check: mark fixed: %w", err)
	}
	return c, nil
}

// InsertHistory appends one evaluation snapshot. History rows are write-once.
func (r *Repository) InsertHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error {
	facts, err := json.Marshal(entry.Facts)
	if err != nil {
		return fmt.Errorf("check: marshal facts: %w", err)
	}

	const query = `
		INSERT INTO check_history
			(id, check_id, client_id, client_phone, agent_id, agency_id,
			 result_status, matched_term_id, matched_contact_id, facts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
	`

	if _, err := tx.Exec(ctx, query,
		r.idGen(),
		entry.CheckID,
		entry.ClientID,
		entry.ClientPhone,
		entry.AgentID,
		entry.AgencyID,
		entry.ResultStatus,
		entry.MatchedTermID,
		entry.MatchedContactID,
		facts,
	); err != nil {
		return fmt.Errorf("check: insert history: %w", err)
	}
	return nil
}

// LatestHistory returns the most recent history entry for a check. Every
// recorded check has at least one; absence means the id is unknown.
func (r *Repository) LatestHistory(ctx context.Context, tx pgx.Tx, checkID string) (HistoryEntry, error) {
	const query = `
		SELECT id, check_id, client_id, client_phone, agent_id, agency_id,
		       result_status, matched_term_id, matched_contact_id, facts, created_at
		FROM check_history
		WHERE check_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var (
		e     HistoryEntry
		facts []byte
	)
	err := tx.QueryRow(ctx, query, checkID).Scan(
		&e.ID,
		&e.CheckID,
		&e.ClientID,
		&e.ClientPhone,
		&e.AgentID,
		&e.AgencyID,
		&e.ResultStatus,
		&e.MatchedTermID,
		&e.MatchedContactID,
		&facts,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HistoryEntry{}, ErrCheckNotFound
		}
		return HistoryEntry{}, fmt.Errorf("check: latest history: %w", err)
	}
	if err := json.Unmarshal(facts, &e.Facts); err != nil {
		return HistoryEntry{}, fmt.Errorf("check: decode facts: %w", err)
	}
	return e, nil
}

// HistoryFilters narrows the history listing for admin screens.
type HistoryFilters struct {
	StatusSlugs []string
	From        *time.Time
	To          *time.Time
	Phone       string
	Page        int
	PageSize    int
}

// ListHistory returns a page of history entries, newest first, plus the total
// count for pagination.
func (r *Repository) ListHistory(ctx context.Context, filters HistoryFilters) ([]HistoryEntry, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := " WHERE true"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filters.StatusSlugs) > 0 {
		where += " AND result_status = ANY(" + arg(filters.StatusSlugs) + ")"
	}
	if filters.From != nil {
		where += " AND created_at >= " + arg(*filters.From)
	}
	if filters.To != nil {
		where += " AND created_at <= " + arg(*filters.To)
	}
	if filters.Phone != "" {
		where += " AND client_phone LIKE " + arg("%" + filters.Phone + "%")
	}

	query := `
		SELECT id, check_id, client_id, client_phone, agent_id, agency_id,
		       result_status, matched_term_id, matched_contact_id, facts, created_at
		FROM check_history` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ` + arg(filters.PageSize) + ` OFFSET ` + arg((filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("check: list history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, filters.PageSize)
	for rows.Next() {
		var (
			e     HistoryEntry
			facts []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.CheckID,
			&e.ClientID,
			&e.ClientPhone,
			&e.AgentID,
			&e.AgencyID,
			&e.ResultStatus,
			&e.MatchedTermID,
			&e.MatchedContactID,
			&facts,
			&e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("check: scan history: %w", err)
		}
		var f term.Facts
		if err := json.Unmarshal(facts, &f); err != nil {
			return nil, 0, fmt.Errorf("check: decode facts: %w", err)
		}
		e.Facts = f
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("check: iterate history: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM check_history` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("check: count history: %w", err)
	}

	return entries, total, nil
}
