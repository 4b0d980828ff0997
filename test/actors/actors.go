package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Initiator races fresh charge attempts for the same order. Whenever the
// order has no live attempt the insert wins; when another initiator got there
// first the partial unique index rejects it with 23505.
func Initiator(ctx context.Context, pool *pgxpool.Pool, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO payment_attempts (id, order_id, phone, provider_ref, status, amount)
			SELECT gen_random_uuid(), o.id, '254712345678', 'mm-' || gen_random_uuid()::text, 'initiated', o.total
			FROM orders o WHERE o.id = $1`, orderID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // active attempt exists
				// expected under contention
			} else {
				return fmt.Errorf("initiator insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Confirmer plays the provider callback: it picks a live attempt, settles it
// with a compare-and-swap out of initiated, and posts the result to the order
// in the same transaction. Roughly one in four callbacks reports failure, and
// duplicates are delivered on purpose.
func Confirmer(ctx context.Context, pool *pgxpool.Pool, orderID string, stop <-chan struct{}) error {
	var lastRef string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		ref := lastRef
		if ref == "" || rand.Intn(3) > 0 {
			_ = tx.QueryRow(ctx, `SELECT provider_ref FROM payment_attempts WHERE order_id=$1 AND status='initiated' LIMIT 1 FOR UPDATE SKIP LOCKED`, orderID).Scan(&ref)
		}
		if ref != "" {
			lastRef = ref
			outcome := "completed"
			if rand.Intn(4) == 0 {
				outcome = "failed"
			}
			var attemptID string
			err = tx.QueryRow(ctx, `
				UPDATE payment_attempts SET status=$2::attempt_status, completed_at=now()
				WHERE provider_ref=$1 AND status='initiated'
				RETURNING id`, ref, outcome).Scan(&attemptID)
			if err == nil && outcome == "completed" {
				_, _ = tx.Exec(ctx, `
					UPDATE orders SET payment_status='completed', payment_id=$2, status='confirmed', updated_at=now()
					WHERE id=$1 AND payment_status <> 'completed'`, orderID, attemptID)
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('payment.completed', jsonb_build_object('order_id',$1::text))`, orderID)
			}
		}
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Expirer sweeps attempts that outlived the confirmation window, the same
// compare-and-swap the scheduler runs. An aggressive two-second window keeps
// it colliding with live callbacks.
func Expirer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			UPDATE payment_attempts SET status='expired', completed_at=now()
			WHERE status='initiated' AND created_at < now() - interval '2 seconds'`)
		if err != nil {
			return fmt.Errorf("expirer sweep: %w", err)
		}
		time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
	}
}

// Dispatcher creates the shipment once the order's payment lands. The unique
// order_id constraint makes concurrent dispatchers idempotent.
func Dispatcher(ctx context.Context, pool *pgxpool.Pool, orderID, courierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO shipments (id, order_id, courier_id, status, tracking_number, otp_code)
			SELECT gen_random_uuid(), o.id, $2, 'CREATED', 'SK-' || upper(substr(md5(random()::text), 1, 12)), '000000'
			FROM orders o WHERE o.id = $1 AND o.payment_status = 'completed'
			ON CONFLICT (order_id) DO NOTHING`, orderID, courierID)
		if err != nil {
			return fmt.Errorf("dispatcher insert: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// courierRoute is the only legal walk through shipment statuses.
var courierRoute = map[string]string{
	"CREATED":          "PICKED_UP",
	"PICKED_UP":        "IN_TRANSIT",
	"IN_TRANSIT":       "OUT_FOR_DELIVERY",
	"OUT_FOR_DELIVERY": "DELIVERED",
}

// Courier walks the shipment forward one hop at a time with the same
// compare-and-swap the service uses, and occasionally replays a stale hop to
// make sure the guard rejects it.
func Courier(ctx context.Context, pool *pgxpool.Pool, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var cur string
		err := pool.QueryRow(ctx, `SELECT status::text FROM shipments WHERE order_id=$1`, orderID).Scan(&cur)
		if err == nil {
			next, ok := courierRoute[cur]
			if ok {
				if rand.Intn(5) == 0 && cur != "CREATED" {
					// replay a hop the shipment already took; zero rows means the guard held
					_, _ = pool.Exec(ctx, `
						UPDATE shipments SET status=$2::shipment_status, updated_at=now()
						WHERE order_id=$1 AND status='CREATED'`, orderID, cur)
				}
				delivered := "NULL"
				if next == "DELIVERED" {
					delivered = "now()"
				}
				_, _ = pool.Exec(ctx, fmt.Sprintf(`
					UPDATE shipments SET status=$2::shipment_status, actual_delivery=COALESCE(%s, actual_delivery), updated_at=now()
					WHERE order_id=$1 AND status=$3::shipment_status`, delivered), orderID, next, cur)
				if next == "DELIVERED" {
					_, _ = pool.Exec(ctx, `
						UPDATE orders SET status='delivered', updated_at=now()
						WHERE id=$1 AND status IN ('confirmed','processing','shipped')`, orderID)
				}
			}
		}
		time.Sleep(time.Duration(80+rand.Intn(120)) * time.Millisecond)
	}
}

// Disputer opens disputes against shipped or delivered orders and resolves
// them with a weighted strike, incrementing the seller's count and
// recomputing standing in the same transaction, exactly once per dispute.
func Disputer(ctx context.Context, pool *pgxpool.Pool, orderID, sellerID, reporterID string, stop <-chan struct{}) error {
	weights := map[string]int{"late_shipping": 1, "wrong_item": 2, "fraud": 3, "other": 0}
	types := []string{"late_shipping", "wrong_item", "fraud", "other"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		ty := types[rand.Intn(len(types))]
		var dispID string
		_ = pool.QueryRow(ctx, `
			INSERT INTO disputes (id, order_id, seller_id, reporter_id, dispute_type, description)
			SELECT gen_random_uuid(), o.id, $2, $3, $4::dispute_type, 'stress dispute'
			FROM orders o WHERE o.id=$1 AND o.status IN ('shipped','delivered')
			RETURNING id`, orderID, sellerID, reporterID, ty).Scan(&dispID)
		if dispID != "" {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			var reason string
			err = tx.QueryRow(ctx, `
				UPDATE disputes SET status='resolved', resolution='customer_favor', strike_reason=dispute_type, resolved_at=now(), updated_at=now()
				WHERE id=$1 AND status <> 'resolved'
				RETURNING strike_reason::text`, dispID).Scan(&reason)
			if err == nil && weights[reason] > 0 {
				_, _ = tx.Exec(ctx, `
					UPDATE seller_profiles
					SET strike_count = strike_count + $2,
					    standing = CASE
					        WHEN strike_count + $2 >= 5 THEN 'banned'::seller_standing
					        WHEN strike_count + $2 >= 3 THEN 'suspended'::seller_standing
					        ELSE standing
					    END,
					    updated_at = now()
					WHERE id=$1`, sellerID, weights[reason])
			}
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// OutboxWorker drains pending outbox rows with SKIP LOCKED, stamping
// processed_at on success and bumping attempts on simulated publish failures.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id FROM outbox
			WHERE processed_at IS NULL AND attempts < 10
			ORDER BY id FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			// simulate random publish failure
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET processed_at=now() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
