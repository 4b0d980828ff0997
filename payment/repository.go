package payment

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
	// ErrOrderNotFound signals the order the charge targets does not exist.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrAttemptNotFound signals no attempt matches the provider reference.
	ErrAttemptNotFound = errors.New("payment: attempt not found")
	// ErrDuplicateActiveAttempt surfaces the partial unique index on
	// initiated attempts; it fires only if two initiators race past the lock.
	ErrDuplicateActiveAttempt = errors.New("payment: active attempt already exists")
)

// Repository is the attempt store. Methods are tx-scoped where the service
// must hold row locks across the check-then-act sequence.
type Repository interface {
	LockOrder(ctx context.Context, tx pgx.Tx, orderID string) (amount int64, customerID string, err error)
	OrderIDByRef(ctx context.Context, tx pgx.Tx, providerRef string) (string, error)
	ActiveAttempt(ctx context.Context, tx pgx.Tx, orderID string) (Attempt, bool, error)
	InsertAttempt(ctx context.Context, tx pgx.Tx, a Attempt) (Attempt, error)
	GetByProviderRef(ctx context.Context, tx pgx.Tx, providerRef string) (Attempt, error)
	MarkTerminal(ctx context.Context, tx pgx.Tx, attemptID string, status AttemptStatus, at time.Time) error
	ExpireAttempt(ctx context.Context, attemptID string) (bool, error)
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LockOrder takes the order row lock that serializes initiate and callback
// per order, and returns the amount to charge plus the paying customer.
func (r *PGRepository) LockOrder(ctx context.Context, tx pgx.Tx, orderID string) (int64, string, error) {
	var (
		total    int64
		customer string
	)
	err := tx.QueryRow(ctx, `SELECT total, customer_id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&total, &customer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", ErrOrderNotFound
		}
		return 0, "", fmt.Errorf("payment: lock order: %w", err)
	}
	return total, customer, nil
}

// OrderIDByRef resolves the attempt's order without locking anything. The
// callback uses it to take the order lock before the attempt lock; the
// order_id on an attempt row never changes, so the unlocked read is safe.
func (r *PGRepository) OrderIDByRef(ctx context.Context, tx pgx.Tx, providerRef string) (string, error) {
	var orderID string
	err := tx.QueryRow(ctx, `SELECT order_id FROM payment_attempts WHERE provider_ref = $1`, providerRef).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAttemptNotFound
		}
		return "", fmt.Errorf("payment: order by provider ref: %w", err)
	}
	return orderID, nil
}

const attemptColumns = `id, order_id, phone, provider_ref, status::text, amount, created_at, completed_at`

// ActiveAttempt locks and returns the order's non-terminal attempt, if any.
// Taking FOR UPDATE here is what makes initiate wait out an in-flight
// callback on the same attempt.
func (r *PGRepository) ActiveAttempt(ctx context.Context, tx pgx.Tx, orderID string) (Attempt, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM payment_attempts
		WHERE order_id = $1 AND status = 'initiated'
		FOR UPDATE
	`, attemptColumns)

	a, err := scanAttempt(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, false, nil
		}
		return Attempt{}, false, fmt.Errorf("payment: active attempt: %w", err)
	}
	return a, true, nil
}

func (r *PGRepository) InsertAttempt(ctx context.Context, tx pgx.Tx, a Attempt) (Attempt, error) {
	query := fmt.Sprintf(`
		INSERT INTO payment_attempts (id, order_id, phone, provider_ref, status, amount)
		VALUES ($1, $2, $3, $4, $5::attempt_status, $6)
		RETURNING %s
	`, attemptColumns)

	inserted, err := scanAttempt(tx.QueryRow(ctx, query, a.ID, a.OrderID, a.Phone, a.ProviderRef, a.Status, a.Amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Attempt{}, ErrDuplicateActiveAttempt
		}
		return Attempt{}, fmt.Errorf("payment: insert attempt: %w", err)
	}
	return inserted, nil
}

func (r *PGRepository) GetByProviderRef(ctx context.Context, tx pgx.Tx, providerRef string) (Attempt, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM payment_attempts
		WHERE provider_ref = $1
		FOR UPDATE
	`, attemptColumns)

	a, err := scanAttempt(tx.QueryRow(ctx, query, providerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, fmt.Errorf("payment: get by provider ref: %w", err)
	}
	return a, nil
}

func (r *PGRepository) MarkTerminal(ctx context.Context, tx pgx.Tx, attemptID string, status AttemptStatus, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_attempts
		SET status = $2::attempt_status, completed_at = $3
		WHERE id = $1 AND status = 'initiated'
	`, attemptID, status, at)
	if err != nil {
		return fmt.Errorf("payment: mark terminal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// ExpireAttempt is the scheduler path for a single attempt: a compare-and-swap
// from initiated to expired. A false return means the attempt was already
// terminal, which the caller treats as done.
func (r *PGRepository) ExpireAttempt(ctx context.Context, attemptID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_attempts
		SET status = 'expired', completed_at = now()
		WHERE id = $1 AND status = 'initiated'
	`, attemptID)
	if err != nil {
		return false, fmt.Errorf("payment: expire attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_attempts
		SET status = 'expired', completed_at = now()
		WHERE status = 'initiated' AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("payment: expire stale attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var a Attempt
	err := row.Scan(
		&a.ID,
		&a.OrderID,
		&a.Phone,
		&a.ProviderRef,
		&a.Status,
		&a.Amount,
		&a.CreatedAt,
		&a.CompletedAt,
	)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}
