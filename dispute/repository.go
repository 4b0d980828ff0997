package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"soko/order"
)

var (
	// ErrNotFound signals no dispute matches the identifier.
	ErrNotFound = errors.New("dispute: not found")
	// ErrOrderNotFound signals the disputed order does not exist.
	ErrOrderNotFound = errors.New("dispute: order not found")
)

// Repository is the dispute store. Resolve-path methods are tx-scoped so the
// strike increment lands in the same transaction.
type Repository interface {
	OrderSummary(ctx context.Context, orderID string) (sellerID, customerID string, status order.Status, err error)
	Insert(ctx context.Context, d Dispute) (Dispute, error)
	Get(ctx context.Context, disputeID string) (Dispute, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Dispute, error)
	SetResponse(ctx context.Context, disputeID, response string) error
	SetStatus(ctx context.Context, disputeID string, from, to Status) error
	Resolve(ctx context.Context, tx pgx.Tx, disputeID string, resolution Resolution, strikeReason *Type) error
	ListByOrder(ctx context.Context, orderID string) ([]Dispute, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const disputeColumns = `
	d.id, d.order_id, d.seller_id, sp.user_id, d.reporter_id,
	d.dispute_type::text, d.status::text, d.description, d.seller_response,
	d.resolution, d.strike_reason, d.created_at, d.updated_at, d.resolved_at`

func (r *PGRepository) OrderSummary(ctx context.Context, orderID string) (string, string, order.Status, error) {
	var (
		sellerID   string
		customerID string
		status     order.Status
	)
	err := r.pool.QueryRow(ctx, `SELECT seller_id, customer_id, status::text FROM orders WHERE id = $1`, orderID).
		Scan(&sellerID, &customerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", "", ErrOrderNotFound
		}
		return "", "", "", fmt.Errorf("dispute: order summary: %w", err)
	}
	return sellerID, customerID, status, nil
}

func (r *PGRepository) Insert(ctx context.Context, d Dispute) (Dispute, error) {
	query := fmt.Sprintf(`
		WITH inserted AS (
			INSERT INTO disputes (id, order_id, seller_id, reporter_id, dispute_type, status, description)
			VALUES ($1, $2, $3, $4, $5::dispute_type, 'open', $6)
			RETURNING *
		)
		SELECT %s FROM inserted d JOIN seller_profiles sp ON sp.id = d.seller_id
	`, disputeColumns)

	inserted, err := scanDispute(r.pool.QueryRow(ctx, query, d.ID, d.OrderID, d.SellerID, d.ReporterID, d.Type, d.Description))
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}
	return inserted, nil
}

func (r *PGRepository) Get(ctx context.Context, disputeID string) (Dispute, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM disputes d
		JOIN seller_profiles sp ON sp.id = d.seller_id
		WHERE d.id = $1
	`, disputeColumns)

	d, err := scanDispute(r.pool.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

// GetForUpdate locks the dispute row for the resolve transaction. The seller
// profile is read without a lock; ApplyStrikes takes its own lock on it.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Dispute, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM disputes d
		JOIN seller_profiles sp ON sp.id = d.seller_id
		WHERE d.id = $1
		FOR UPDATE OF d
	`, disputeColumns)

	d, err := scanDispute(tx.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get for update: %w", err)
	}
	return d, nil
}

// SetResponse records the seller's side and moves open -> seller_responded
// in one guarded update.
func (r *PGRepository) SetResponse(ctx context.Context, disputeID, response string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes
		SET seller_response = $2, status = 'seller_responded', updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, disputeID, response)
	if err != nil {
		return fmt.Errorf("dispute: set response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetStatus(ctx context.Context, disputeID string, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes
		SET status = $3::dispute_status, updated_at = now()
		WHERE id = $1 AND status = $2::dispute_status
	`, disputeID, from, to)
	if err != nil {
		return fmt.Errorf("dispute: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) Resolve(ctx context.Context, tx pgx.Tx, disputeID string, resolution Resolution, strikeReason *Type) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'resolved', resolution = $2::dispute_resolution,
		    strike_reason = $3, resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status <> 'resolved'
	`, disputeID, resolution, strikeReason)
	if err != nil {
		return fmt.Errorf("dispute: resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListByOrder(ctx context.Context, orderID string) ([]Dispute, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM disputes d
		JOIN seller_profiles sp ON sp.id = d.seller_id
		WHERE d.order_id = $1
		ORDER BY d.created_at DESC
	`, disputeColumns)

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list by order: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 4)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var d Dispute
	err := row.Scan(
		&d.ID,
		&d.OrderID,
		&d.SellerID,
		&d.SellerUserID,
		&d.ReporterID,
		&d.Type,
		&d.Status,
		&d.Description,
		&d.SellerResponse,
		&d.Resolution,
		&d.StrikeReason,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ResolvedAt,
	)
	if err != nil {
		return Dispute{}, err
	}
	return d, nil
}
