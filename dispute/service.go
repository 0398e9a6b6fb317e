package dispute

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"clientpin/check"
	"clientpin/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DisputeRepository defines the dispute data access used by the coordinator.
type DisputeRepository interface {
	Create(ctx context.Context, tx pgx.Tx, checkID, raisedBy, comment string) (Record, error)
	Escalate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error)
	Resolve(ctx context.Context, tx pgx.Tx, disputeID, resolvedBy, finalStatus string, accepted bool) (Record, error)
}

// CheckStore is the slice of check persistence the coordinator needs.
type CheckStore interface {
	GetByID(ctx context.Context, checkID string) (check.Check, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, checkID string) (check.Check, error)
	MarkFixed(ctx context.Context, tx pgx.Tx, checkID, resultStatus string) (check.Check, error)
	LatestHistory(ctx context.Context, tx pgx.Tx, checkID string) (check.HistoryEntry, error)
	InsertHistory(ctx context.Context, tx pgx.Tx, entry check.HistoryEntry) error
}

const resolvedTemplateSlug = "dispute_resolved"

// Coordinator drives the dispute state machine around check outcomes.
type Coordinator struct {
	pool     TxBeginner
	repo     DisputeRepository
	checks   CheckStore
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewCoordinator(pool TxBeginner, repo DisputeRepository, checks CheckStore, notifier notify.Notifier, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		pool:     pool,
		repo:     repo,
		checks:   checks,
		notifier: notifier,
		log:      log,
	}
}

// RaiseDispute contests a check's outcome. The dispute is created open and
// escalated in the same transaction: every dispute needs administrative
// adjudication, so routing to the admin queue is a state, not a second call.
func (c *Coordinator) RaiseDispute(ctx context.Context, checkID, raisedBy, comment string) (Record, error) {
	if _, err := c.checks.GetByID(ctx, checkID); err != nil {
		return Record{}, err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := c.repo.Create(ctx, tx, checkID, raisedBy, comment)
	if err != nil {
		return Record{}, err
	}

	escalated, err := c.repo.Escalate(ctx, tx, created.ID)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit raise: %w", err)
	}

	c.log.Info().
		Str("dispute_id", escalated.ID).
		Str("check_id", checkID).
		Str("raised_by", raisedBy).
		Msg("dispute escalated to admin queue")

	return escalated, nil
}

// ResolveDispute adjudicates an escalated dispute. The associated check is
// frozen with the final status, a history entry records the adjudication,
// and the raiser is notified best-effort.
func (c *Coordinator) ResolveDispute(ctx context.Context, disputeID, resolvedBy, finalStatus string, accept bool) (Record, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := c.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Record{}, err
	}
	if d.State != StateEscalated {
		return Record{}, ErrInvalidTransition
	}

	if _, err := c.checks.GetForUpdate(ctx, tx, d.CheckID); err != nil {
		return Record{}, err
	}

	// The last evaluation supplies the phone and facts for the adjudication
	// entry; the admin history screen searches by client_phone.
	last, err := c.checks.LatestHistory(ctx, tx, d.CheckID)
	if err != nil {
		return Record{}, err
	}

	fixed, err := c.checks.MarkFixed(ctx, tx, d.CheckID, finalStatus)
	if err != nil {
		return Record{}, err
	}

	resolved, err := c.repo.Resolve(ctx, tx, disputeID, resolvedBy, finalStatus, accept)
	if err != nil {
		return Record{}, err
	}

	entry := check.HistoryEntry{
		CheckID:          fixed.ID,
		ClientID:         fixed.ClientID,
		ClientPhone:      last.ClientPhone,
		AgentID:          last.AgentID,
		AgencyID:         last.AgencyID,
		ResultStatus:     finalStatus,
		MatchedContactID: fixed.MatchedContactID,
		Facts:            last.Facts,
	}
	if err := c.checks.InsertHistory(ctx, tx, entry); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}

	payload := map[string]any{
		"dispute_id":   resolved.ID,
		"check_id":     fixed.ID,
		"final_status": finalStatus,
		"accepted":     accept,
	}
	if err := c.notifier.Notify(ctx, d.RaisedBy, resolvedTemplateSlug, payload); err != nil {
		c.log.Warn().Err(err).Str("dispute_id", resolved.ID).Msg("dispute resolution notification failed")
	}

	return resolved, nil
}
