package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_live_check_per_client",
			SQL: `SELECT client_id, COUNT(*) FROM checks
                  WHERE NOT fixed AND client_id IS NOT NULL
                  GROUP BY client_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_one_active_dispute_per_check",
			SQL: `SELECT check_id, COUNT(*) FROM disputes
                  WHERE state IN ('open','escalated')
                  GROUP BY check_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_resolved_dispute_froze_check",
			SQL: `SELECT d.id FROM disputes d
                  JOIN checks c ON c.id = d.check_id
                  WHERE d.state = 'resolved' AND NOT c.fixed`,
		},
		{
			Name: "O4_resolved_dispute_complete",
			SQL: `SELECT id FROM disputes
                  WHERE state = 'resolved'
                    AND (accepted IS NULL OR resolved_status IS NULL
                         OR resolved_by IS NULL OR resolved_at IS NULL)`,
		},
		{
			Name: "O5_history_covers_checks",
			SQL: `SELECT c.id FROM checks c
                  WHERE NOT EXISTS (SELECT 1 FROM check_history h WHERE h.check_id = c.id)`,
		},
		{
			Name: "O6_check_status_known",
			SQL: `SELECT c.id FROM checks c
                  LEFT JOIN unique_statuses s ON s.slug = c.result_status
                  WHERE s.slug IS NULL`,
		},
		{
			Name: "O7_history_status_known",
			SQL: `SELECT h.id FROM check_history h
                  LEFT JOIN unique_statuses s ON s.slug = h.result_status
                  WHERE s.slug IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
