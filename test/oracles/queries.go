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
			Name: "O1_single_active_attempt",
			SQL: `SELECT order_id, COUNT(*) FROM payment_attempts
                  WHERE status = 'initiated'
                  GROUP BY order_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_attempt_amount_matches_order",
			SQL: `SELECT a.id FROM payment_attempts a
                  JOIN orders o ON o.id = a.order_id
                  WHERE a.amount <> o.total`,
		},
		{
			Name: "O3_terminal_attempt_stamped",
			SQL: `SELECT id FROM payment_attempts
                  WHERE (status <> 'initiated' AND completed_at IS NULL)
                     OR (status = 'initiated' AND completed_at IS NOT NULL)`,
		},
		{
			Name: "O4_paid_order_backed_by_attempt",
			SQL: `SELECT o.id FROM orders o
                  WHERE o.payment_status = 'completed'
                    AND NOT EXISTS (
                        SELECT 1 FROM payment_attempts a
                        WHERE a.id = o.payment_id AND a.order_id = o.id AND a.status = 'completed')`,
		},
		{
			Name: "O5_shipment_requires_payment",
			SQL: `SELECT s.id FROM shipments s
                  JOIN orders o ON o.id = s.order_id
                  WHERE o.payment_status <> 'completed'`,
		},
		{
			Name: "O6_delivery_stamp",
			SQL: `SELECT id FROM shipments
                  WHERE (status = 'DELIVERED' AND actual_delivery IS NULL)
                     OR (status <> 'DELIVERED' AND actual_delivery IS NOT NULL)`,
		},
		{
			Name: "O7_strike_standing_consistency",
			SQL: `SELECT id, strike_count, standing FROM seller_profiles
                  WHERE (strike_count >= 5 AND standing <> 'banned')
                     OR (strike_count >= 3 AND standing = 'active')`,
		},
		{
			Name: "O8_resolved_dispute_complete",
			SQL: `SELECT id FROM disputes
                  WHERE (status = 'resolved' AND (resolution IS NULL OR resolved_at IS NULL))
                     OR (status <> 'resolved' AND (resolution IS NOT NULL OR resolved_at IS NOT NULL))`,
		},
		{
			Name: "O9_dispute_targets_fulfilled_order",
			SQL: `SELECT d.id FROM disputes d
                  JOIN orders o ON o.id = d.order_id
                  WHERE o.status NOT IN ('shipped', 'delivered')`,
		},
		{
			Name: "O10_outbox_drained",
			SQL: `SELECT id FROM outbox
                  WHERE processed_at IS NULL AND attempts < 10
                    AND now() - created_at > interval '5 minutes'`,
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
