package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"soko/policy"
	"soko/verification"
)

var (
	// ErrSellerNotVerified rejects orders against a seller that has not
	// passed document verification.
	ErrSellerNotVerified = errors.New("order: seller not verified")
	// ErrSellerBanned rejects orders against a seller whose standing is banned.
	ErrSellerBanned = errors.New("order: seller banned")
	// ErrInvalidTransition signals the requested status edge does not exist.
	ErrInvalidTransition = errors.New("order: invalid transition")
	// ErrPaymentRequired signals the edge exists but the order is unpaid.
	ErrPaymentRequired = errors.New("order: payment required")
	// ErrEmptyOrder signals checkout without items.
	ErrEmptyOrder = errors.New("order: at least one item required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SellerDirectory is the slice of the verification engine the ledger reads:
// only verified sellers' catalog entries may be ordered, and banned sellers
// take no new orders at all.
type SellerDirectory interface {
	GetSeller(ctx context.Context, sellerID string) (verification.Seller, error)
}

// Service is the single source of truth for order status and payment status.
type Service struct {
	pool    TxBeginner
	repo    Repository
	sellers SellerDirectory
	idGen   func() string
	now     func() time.Time
}

func NewService(pool TxBeginner, repo Repository, sellers SellerDirectory) *Service {
	return &Service{
		pool:    pool,
		repo:    repo,
		sellers: sellers,
		idGen:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// CreateParams is one checkout against a single seller's catalog.
type CreateParams struct {
	SellerID        string
	Items           []Item
	ShippingAddress *string
	DeliveryMode    DeliveryMode
	ShippingFee     int64
}

// Create opens a new order in pending/pending. The total is computed here and
// never recomputed: items are immutable once the order exists.
func (s *Service) Create(ctx context.Context, actor policy.Actor, params CreateParams) (Order, error) {
	if err := policy.Require(actor, policy.ActionCreateOrder); err != nil {
		return Order{}, err
	}
	if len(params.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	for _, it := range params.Items {
		if it.UnitPrice <= 0 || it.Quantity <= 0 {
			return Order{}, fmt.Errorf("order: item %q: price and quantity must be positive", it.Name)
		}
	}
	if params.ShippingFee < 0 {
		return Order{}, fmt.Errorf("order: negative shipping fee")
	}
	switch params.DeliveryMode {
	case DeliveryCourier, DeliveryPickup:
	default:
		return Order{}, fmt.Errorf("order: unknown delivery mode %q", params.DeliveryMode)
	}

	seller, err := s.sellers.GetSeller(ctx, params.SellerID)
	if err != nil {
		return Order{}, err
	}
	if seller.Status != verification.StatusVerified {
		return Order{}, ErrSellerNotVerified
	}
	if seller.Standing == verification.StandingBanned {
		return Order{}, ErrSellerBanned
	}

	o := Order{
		ID:              s.idGen(),
		SellerID:        params.SellerID,
		CustomerID:      actor.ID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Items:           params.Items,
		ShippingAddress: params.ShippingAddress,
		DeliveryMode:    params.DeliveryMode,
		ShippingFee:     params.ShippingFee,
		Total:           Subtotal(params.Items) + params.ShippingFee,
	}
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = s.idGen()
		}
	}

	return s.repo.Insert(ctx, o)
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.repo.Get(ctx, orderID)
}

// Advance moves the order along one edge of the status table. The row is
// locked for the duration, so racing advances serialize; the payment
// precondition is checked against the locked row, not request ordering.
func (s *Service) Advance(ctx context.Context, actor policy.Actor, orderID string, target Status) error {
	if err := policy.Require(actor, policy.ActionAdvanceOrder); err != nil {
		return err
	}
	if !validStatus(target) {
		return fmt.Errorf("order: unknown status %q", target)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order: begin advance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	// Sellers move only their own orders; staff and admin move any.
	if actor.Role == policy.RoleSeller && o.SellerUserID != actor.ID {
		return policy.ErrForbidden
	}
	if !CanTransition(o.Status, target) {
		return ErrInvalidTransition
	}
	if requiresPayment(target) && o.PaymentStatus != PaymentCompleted {
		return ErrPaymentRequired
	}

	if err := s.repo.UpdateStatus(ctx, tx, orderID, target); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("order: commit advance: %w", err)
	}
	return nil
}
