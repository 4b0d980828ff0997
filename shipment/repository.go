package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no shipment matches the identifier.
	ErrNotFound = errors.New("shipment: not found")
	// ErrOrderNotFound signals the order to ship does not exist.
	ErrOrderNotFound = errors.New("shipment: order not found")
	// ErrShipmentExists surfaces the unique index on order_id: an order
	// carries at most one shipment.
	ErrShipmentExists = errors.New("shipment: shipment already exists for order")
	// ErrStaleStatus means the compare-and-swap on the current status lost
	// to a concurrent advance.
	ErrStaleStatus = errors.New("shipment: status changed concurrently")
)

// Repository is the shipment store. Tx-scoped methods let the service hold
// the shipment row lock across the check-then-act sequence.
type Repository interface {
	LockOrderPayment(ctx context.Context, tx pgx.Tx, orderID string) (paymentStatus string, err error)
	Insert(ctx context.Context, tx pgx.Tx, sh Shipment) (Shipment, error)
	Get(ctx context.Context, shipmentID string) (Shipment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, shipmentID string) (Shipment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, shipmentID string, from, to Status, deliveredAt *time.Time) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const shipmentColumns = `id, order_id, courier_id, status::text, tracking_number, otp_code, actual_delivery, created_at, updated_at`

// LockOrderPayment locks the order row and returns its payment status. The
// lock keeps a concurrent payment callback from flipping the status between
// the check and the shipment insert.
func (r *PGRepository) LockOrderPayment(ctx context.Context, tx pgx.Tx, orderID string) (string, error) {
	var paymentStatus string
	err := tx.QueryRow(ctx, `SELECT payment_status::text FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&paymentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("shipment: lock order: %w", err)
	}
	return paymentStatus, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, sh Shipment) (Shipment, error) {
	query := fmt.Sprintf(`
		INSERT INTO shipments (id, order_id, courier_id, status, tracking_number, otp_code)
		VALUES ($1, $2, $3, $4::shipment_status, $5, $6)
		RETURNING %s
	`, shipmentColumns)

	inserted, err := scanShipment(tx.QueryRow(ctx, query, sh.ID, sh.OrderID, sh.CourierID, sh.Status, sh.TrackingNumber, sh.OTPCode))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Shipment{}, ErrShipmentExists
		}
		return Shipment{}, fmt.Errorf("shipment: insert: %w", err)
	}
	return inserted, nil
}

func (r *PGRepository) Get(ctx context.Context, shipmentID string) (Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1`, shipmentColumns)

	sh, err := scanShipment(r.pool.QueryRow(ctx, query, shipmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, fmt.Errorf("shipment: get: %w", err)
	}
	return sh, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, shipmentID string) (Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1 FOR UPDATE`, shipmentColumns)

	sh, err := scanShipment(tx.QueryRow(ctx, query, shipmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, fmt.Errorf("shipment: get for update: %w", err)
	}
	return sh, nil
}

// UpdateStatus is a compare-and-swap on the current status. With the row
// lock held it cannot lose, but the guard stays so the pool path (expiry
// jobs, backfills) can reuse it safely.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, shipmentID string, from, to Status, deliveredAt *time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE shipments
		SET status = $3::shipment_status, actual_delivery = COALESCE($4, actual_delivery), updated_at = now()
		WHERE id = $1 AND status = $2::shipment_status
	`, shipmentID, from, to, deliveredAt)
	if err != nil {
		return fmt.Errorf("shipment: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func scanShipment(row pgx.Row) (Shipment, error) {
	var sh Shipment
	err := row.Scan(
		&sh.ID,
		&sh.OrderID,
		&sh.CourierID,
		&sh.Status,
		&sh.TrackingNumber,
		&sh.OTPCode,
		&sh.ActualDelivery,
		&sh.CreatedAt,
		&sh.UpdatedAt,
	)
	if err != nil {
		return Shipment{}, err
	}
	return sh, nil
}
