package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"soko/order"
	"soko/policy"
)

var (
	// ErrAttemptActive rejects a new charge while a previous attempt on the
	// order is still non-terminal.
	ErrAttemptActive = errors.New("payment: attempt already active")
	// ErrUnknownOutcome signals a callback outcome outside the enum.
	ErrUnknownOutcome = errors.New("payment: unknown outcome")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the slice of the order ledger the reconciler writes: the payment
// outcome, inside the reconciler's own transaction, and nothing else.
type Ledger interface {
	ApplyPaymentResult(ctx context.Context, tx pgx.Tx, orderID string, result order.PaymentStatus, paymentID string) error
}

// EventWriter appends an outbox record inside the transaction; nil disables it.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service bridges orders to the mobile-money provider and reconciles the
// asynchronous confirmation exactly once.
type Service struct {
	pool     TxBeginner
	repo     Repository
	provider Provider
	ledger   Ledger
	events   EventWriter
	idGen    func() string
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Repository, provider Provider, ledger Ledger) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		provider: provider,
		ledger:   ledger,
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func (s *Service) WithEventWriter(events EventWriter) *Service {
	s.events = events
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Initiate starts a charge for the order. While an attempt is in flight the
// call is idempotent: retrying with the same phone returns the existing
// attempt, a different phone is a conflict. The order row lock serializes
// concurrent initiators; the attempt row lock serializes against an in-flight
// callback for the same order.
func (s *Service) Initiate(ctx context.Context, actor policy.Actor, orderID, rawPhone string) (Attempt, error) {
	if err := policy.Require(actor, policy.ActionInitiatePayment); err != nil {
		return Attempt{}, err
	}
	phone, err := NormalizeMSISDN(rawPhone)
	if err != nil {
		return Attempt{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Attempt{}, fmt.Errorf("payment: begin initiate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	amount, customerID, err := s.repo.LockOrder(ctx, tx, orderID)
	if err != nil {
		return Attempt{}, err
	}
	// Customers pay only for their own orders; staff and admin may pay on
	// anyone's behalf.
	if actor.Role == policy.RoleCustomer && customerID != actor.ID {
		return Attempt{}, policy.ErrForbidden
	}

	active, found, err := s.repo.ActiveAttempt(ctx, tx, orderID)
	if err != nil {
		return Attempt{}, err
	}
	if found {
		if active.Phone == phone {
			return active, nil
		}
		return Attempt{}, ErrAttemptActive
	}

	providerRef, err := s.provider.RequestCharge(ctx, ChargeRequest{
		Phone:       phone,
		Amount:      amount,
		AccountRef:  orderID,
		Description: "order payment",
	})
	if err != nil {
		return Attempt{}, err
	}

	attempt, err := s.repo.InsertAttempt(ctx, tx, Attempt{
		ID:          s.idGen(),
		OrderID:     orderID,
		Phone:       phone,
		ProviderRef: providerRef,
		Status:      AttemptInitiated,
		Amount:      amount,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateActiveAttempt) {
			return Attempt{}, ErrAttemptActive
		}
		return Attempt{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Attempt{}, fmt.Errorf("payment: commit initiate: %w", err)
	}
	return attempt, nil
}

// HandleProviderCallback resolves a charge outcome exactly once. The provider
// delivers at least once; a callback for an already-terminal attempt is a
// no-op, never an error.
func (s *Service) HandleProviderCallback(ctx context.Context, providerRef string, outcome Outcome) error {
	var (
		result order.PaymentStatus
		status AttemptStatus
	)
	switch outcome {
	case OutcomeCompleted:
		result, status = order.PaymentCompleted, AttemptCompleted
	case OutcomeFailed:
		result, status = order.PaymentFailed, AttemptFailed
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payment: begin callback tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Take the order lock before the attempt lock, the same order initiate
	// acquires them in; locking the attempt first deadlocks against an
	// initiate holding the order row.
	orderID, err := s.repo.OrderIDByRef(ctx, tx, providerRef)
	if err != nil {
		return err
	}
	if _, _, err := s.repo.LockOrder(ctx, tx, orderID); err != nil {
		return err
	}

	attempt, err := s.repo.GetByProviderRef(ctx, tx, providerRef)
	if err != nil {
		return err
	}
	if attempt.Status.IsTerminal() {
		// Redelivery; the first delivery already applied the outcome.
		return nil
	}

	if err := s.repo.MarkTerminal(ctx, tx, attempt.ID, status, s.now()); err != nil {
		return err
	}
	if err := s.ledger.ApplyPaymentResult(ctx, tx, attempt.OrderID, result, attempt.ID); err != nil {
		return err
	}

	if s.events != nil {
		topic := "payment.completed"
		if outcome == OutcomeFailed {
			topic = "payment.failed"
		}
		if err := s.events.Enqueue(ctx, tx, topic, map[string]any{
			"order_id":     attempt.OrderID,
			"attempt_id":   attempt.ID,
			"provider_ref": providerRef,
			"amount":       attempt.Amount,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payment: commit callback: %w", err)
	}
	return nil
}

// Expire marks a single attempt expired if the provider never called back.
// The order's payment status is untouched: it stays pending until a real
// outcome or a fresh attempt succeeds.
func (s *Service) Expire(ctx context.Context, attemptID string) error {
	_, err := s.repo.ExpireAttempt(ctx, attemptID)
	return err
}

// ExpireStale expires every attempt older than the window. Safe to run
// concurrently with callbacks: both sides compare-and-swap on the status.
func (s *Service) ExpireStale(ctx context.Context, window time.Duration) (int64, error) {
	return s.repo.ExpireOlderThan(ctx, s.now().Add(-window))
}
