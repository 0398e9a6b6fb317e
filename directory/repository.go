package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested record does not exist.
var ErrNotFound = errors.New("directory: not found")

// Repository provides read access to the client/agent directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindClientByPhone fetches the newest non-deleted client carrying the
// normalized phone. Soft-deleted rows never participate in ownership checks.
func (r *Repository) FindClientByPhone(ctx context.Context, phone string) (ClientRecord, error) {
	const query = `
		SELECT id, phone, full_name, email, agent_id, agency_id, agency_status
		FROM clients
		WHERE phone = $1 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rec ClientRecord
	err := r.pool.QueryRow(ctx, query, phone).Scan(
		&rec.ID,
		&rec.Phone,
		&rec.FullName,
		&rec.Email,
		&rec.AgentID,
		&rec.AgencyID,
		&rec.AgencyStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientRecord{}, ErrNotFound
		}
		return ClientRecord{}, fmt.Errorf("directory: find client by phone: %w", err)
	}
	return rec, nil
}

// GetAgent fetches an agent's agency linkage.
func (r *Repository) GetAgent(ctx context.Context, agentID string) (AgentRecord, error) {
	const query = `
		SELECT id, agency_id
		FROM users
		WHERE id = $1 AND role = 'agent'
	`

	var rec AgentRecord
	if err := r.pool.QueryRow(ctx, query, agentID).Scan(&rec.ID, &rec.AgencyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentRecord{}, ErrNotFound
		}
		return AgentRecord{}, fmt.Errorf("directory: get agent: %w", err)
	}
	return rec, nil
}
