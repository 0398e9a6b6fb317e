package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"clientpin/notify"
	"clientpin/term"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RecorderRepository defines the data access the recorder needs inside one
// transaction.
type RecorderRepository interface {
	GetLiveForUpdate(ctx context.Context, tx pgx.Tx, clientID string) (Check, error)
	Insert(ctx context.Context, tx pgx.Tx, params InsertCheckParams) (Check, error)
	UpdateResult(ctx context.Context, tx pgx.Tx, checkID, resultStatus string, contactID *int64) (Check, error)
	InsertHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error
}

// InsertCheckParams enumerates the fields for a fresh check row.
type InsertCheckParams struct {
	ClientID         *string
	ResultStatus     string
	MatchedContactID *int64
}

// NotificationRule configures which statuses alert which recipients. The
// mapping is recorder configuration, not per-record state.
type NotificationRule struct {
	TemplateSlug string
	Recipients   []string
}

// DefaultNotificationRules routes outcomes that need back-office attention
// to the admin mailbox.
func DefaultNotificationRules() map[string]NotificationRule {
	return map[string]NotificationRule{
		term.StatusError: {
			TemplateSlug: "check_no_rule_matched",
			Recipients:   []string{"admins"},
		},
		term.StatusCanDispute: {
			TemplateSlug: "check_dispute_available",
			Recipients:   []string{"admins"},
		},
	}
}

// RecordParams carries one matcher outcome into persistence.
type RecordParams struct {
	ClientID         *string
	ClientPhone      string
	AgentID          *string
	AgencyID         *string
	Outcome          term.Outcome
	Facts            term.Facts
	MatchedContactID *int64
}

// Recorder applies matcher outcomes to persisted state with idempotency.
type Recorder struct {
	pool        TxBeginner
	repo        RecorderRepository
	notifier    notify.Notifier
	notifyRules map[string]NotificationRule
	log         zerolog.Logger
}

func NewRecorder(pool TxBeginner, repo RecorderRepository, notifier notify.Notifier, rules map[string]NotificationRule, log zerolog.Logger) *Recorder {
	return &Recorder{
		pool:        pool,
		repo:        repo,
		notifier:    notifier,
		notifyRules: rules,
		log:         log,
	}
}

// RecordCheck persists one evaluation.
//
// The live (non-fixed) check for the client is loaded under a row lock and
// overwritten in place, keeping at most one live check per client. A fixed
// check is left untouched; the evaluation is still appended to history so the
// audit trail shows drift between the frozen decision and current reality.
// Checks without an internal client (CRM-only prospects) always insert a
// fresh row. A history entry is appended on every call.
func (r *Recorder) RecordCheck(ctx context.Context, params RecordParams) (Check, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Check{}, fmt.Errorf("check: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	live, err := r.applyOutcome(ctx, tx, params)
	if err != nil {
		return Check{}, err
	}

	entry := HistoryEntry{
		CheckID:          live.ID,
		ClientID:         params.ClientID,
		ClientPhone:      params.ClientPhone,
		AgentID:          params.AgentID,
		AgencyID:         params.AgencyID,
		ResultStatus:     params.Outcome.Status,
		MatchedTermID:    params.Outcome.TermID,
		MatchedContactID: params.MatchedContactID,
		Facts:            params.Facts,
	}
	if err := r.repo.InsertHistory(ctx, tx, entry); err != nil {
		return Check{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Check{}, fmt.Errorf("check: commit: %w", err)
	}

	r.dispatchNotification(ctx, params)

	return live, nil
}

func (r *Recorder) applyOutcome(ctx context.Context, tx pgx.Tx, params RecordParams) (Check, error) {
	insert := InsertCheckParams{
		ClientID:         params.ClientID,
		ResultStatus:     params.Outcome.Status,
		MatchedContactID: params.MatchedContactID,
	}

	if params.ClientID == nil {
		return r.repo.Insert(ctx, tx, insert)
	}

	live, err := r.repo.GetLiveForUpdate(ctx, tx, *params.ClientID)
	switch {
	case errors.Is(err, ErrCheckNotFound):
		return r.repo.Insert(ctx, tx, insert)
	case err != nil:
		return Check{}, err
	}

	if live.Fixed {
		// Frozen by dispute resolution or administrative pinning; only the
		// history entry records what re-evaluation would have produced.
		return live, nil
	}

	return r.repo.UpdateResult(ctx, tx, live.ID, params.Outcome.Status, params.MatchedContactID)
}

// dispatchNotification fires the configured alert for the produced status.
// Best-effort: failures are logged and never affect the recorded check.
func (r *Recorder) dispatchNotification(ctx context.Context, params RecordParams) {
	rule, ok := r.notifyRules[params.Outcome.Status]
	if !ok {
		return
	}

	payload := map[string]any{
		"client_phone":  params.ClientPhone,
		"result_status": params.Outcome.Status,
	}
	if params.AgentID != nil {
		payload["agent_id"] = *params.AgentID
	}

	for _, recipient := range rule.Recipients {
		if err := r.notifier.Notify(ctx, recipient, rule.TemplateSlug, payload); err != nil {
			r.log.Warn().Err(err).
				Str("recipient_id", recipient).
				Str("status", params.Outcome.Status).
				Msg("check notification failed")
		}
	}
}
