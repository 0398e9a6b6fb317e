package actors

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"clientpin/check"
	"clientpin/dispute"
	"clientpin/term"
)

var outcomeStatuses = []string{
	term.StatusUnique,
	term.StatusNotUnique,
	term.StatusCanDispute,
	term.StatusPartiallyPinned,
	term.StatusPinned,
	term.StatusError,
}

// Evaluator re-evaluates the same client in a tight loop with randomized
// outcomes, competing with other evaluators for the client's single live
// check row. Errors are tolerated: the chaos goroutine kills backends at
// random, and the oracles are the arbiter of correctness.
func Evaluator(ctx context.Context, rec *check.Recorder, clientID, phone, agentID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		status := outcomeStatuses[rand.Intn(len(outcomeStatuses))]
		_, _ = rec.RecordCheck(ctx, check.RecordParams{
			ClientID:    &clientID,
			ClientPhone: phone,
			AgentID:     &agentID,
			Outcome:     term.Outcome{Status: status},
			Facts: term.Facts{
				CityID:      int64(rand.Intn(3) + 1),
				HasAnyAgent: rand.Intn(2) == 0,
			},
		})
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Disputer contests the client's live check. Losing the race for the single
// active dispute slot is expected under contention.
func Disputer(ctx context.Context, pool *pgxpool.Pool, coord *dispute.Coordinator, clientID, raisedBy string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var checkID string
		if err := pool.QueryRow(ctx, `SELECT id FROM checks WHERE client_id=$1 ORDER BY updated_at DESC LIMIT 1`, clientID).Scan(&checkID); err == nil {
			_, _ = coord.RaiseDispute(ctx, checkID, raisedBy, "contention test")
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Adjudicator resolves whatever escalated dispute it finds, freezing the
// underlying check with a final status.
func Adjudicator(ctx context.Context, pool *pgxpool.Pool, coord *dispute.Coordinator, adminID string, stop <-chan struct{}) error {
	finals := []string{term.StatusUnique, term.StatusNotUnique, term.StatusPinned}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var disputeID string
		if err := pool.QueryRow(ctx, `SELECT id FROM disputes WHERE state='escalated' ORDER BY created_at LIMIT 1`).Scan(&disputeID); err == nil {
			_, _ = coord.ResolveDispute(ctx, disputeID, adminID, finals[rand.Intn(len(finals))], rand.Intn(2) == 0)
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}
