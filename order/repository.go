package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals no order row exists for the identifier.
var ErrNotFound = errors.New("order: not found")

// Repository is the persistence surface for the ledger. The tx-scoped methods
// exist so advance/apply run against a locked row inside one transaction; the
// payment package drives ApplyPaymentResult from its callback transaction.
type Repository interface {
	Insert(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status Status) error
	ApplyPaymentResult(ctx context.Context, tx pgx.Tx, orderID string, result PaymentStatus, paymentID string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, o Order) (Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO orders (id, seller_id, customer_id, status, payment_status, shipping_address, delivery_mode, shipping_fee, total)
		VALUES ($1, $2, $3, $4::order_status, $5::payment_status, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertSQL,
		o.ID,
		o.SellerID,
		o.CustomerID,
		o.Status,
		o.PaymentStatus,
		o.ShippingAddress,
		o.DeliveryMode,
		o.ShippingFee,
		o.Total,
	).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}

	const itemSQL = `
		INSERT INTO order_items (id, order_id, product_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		it := o.Items[i]
		if _, err := tx.Exec(ctx, itemSQL, it.ID, it.OrderID, it.ProductID, it.Name, it.UnitPrice, it.Quantity); err != nil {
			return Order{}, fmt.Errorf("order: insert item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit insert: %w", err)
	}
	return o, nil
}

func (r *PGRepository) Get(ctx context.Context, orderID string) (Order, error) {
	const query = `
		SELECT id, seller_id, customer_id, status::text, payment_status::text, payment_id, shipping_address, delivery_mode, shipping_fee, total, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&o.ID,
		&o.SellerID,
		&o.CustomerID,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentID,
		&o.ShippingAddress,
		&o.DeliveryMode,
		&o.ShippingFee,
		&o.Total,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}

	const itemsSQL = `
		SELECT id, order_id, product_id, name, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, itemsSQL, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("order: list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return Order{}, fmt.Errorf("order: scan item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("order: iterate items: %w", err)
	}
	return o, nil
}

// GetForUpdate locks the order row and returns the slice advance needs: the
// current state plus the seller's user id for the ownership check.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (Order, error) {
	var o Order
	err := tx.QueryRow(ctx, `
		SELECT o.id, o.seller_id, sp.user_id, o.customer_id, o.status::text, o.payment_status::text
		FROM orders o
		JOIN seller_profiles sp ON sp.id = o.seller_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, orderID).Scan(&o.ID, &o.SellerID, &o.SellerUserID, &o.CustomerID, &o.Status, &o.PaymentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: lock: %w", err)
	}
	return o, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status Status) error {
	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2::order_status, updated_at = now()
		WHERE id = $1
	`, orderID, status); err != nil {
		return fmt.Errorf("order: update status: %w", err)
	}
	return nil
}

// ApplyPaymentResult records the reconciled payment outcome. It never touches
// Order.Status; advancing remains a separate, explicit action.
func (r *PGRepository) ApplyPaymentResult(ctx context.Context, tx pgx.Tx, orderID string, result PaymentStatus, paymentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2::payment_status, payment_id = $3, updated_at = now()
		WHERE id = $1
	`, orderID, result, paymentID)
	if err != nil {
		return fmt.Errorf("order: apply payment result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
