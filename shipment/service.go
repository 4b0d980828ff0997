package shipment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"soko/policy"
)

var (
	// ErrPaymentRequired rejects shipment creation for an unpaid order.
	ErrPaymentRequired = errors.New("shipment: order payment not completed")
	// ErrInvalidTransition signals the target status is not the current
	// status's successor in the adjacency table.
	ErrInvalidTransition = errors.New("shipment: invalid status transition")
	// ErrInvalidOTP rejects a delivery confirmation whose code does not
	// match the one issued at creation.
	ErrInvalidOTP = errors.New("shipment: delivery code mismatch")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns the shipment state machine. It never touches the order's own
// status: on delivery the caller advances the order separately, keeping the
// two machines decoupled.
type Service struct {
	pool  TxBeginner
	repo  Repository
	idGen func() string
	now   func() time.Time
}

func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateForOrder assigns a courier to a paid order and issues the tracking
// number and the delivery OTP the courier must present at hand-off.
func (s *Service) CreateForOrder(ctx context.Context, actor policy.Actor, orderID, courierID string) (Shipment, error) {
	if err := policy.Require(actor, policy.ActionCreateShipment); err != nil {
		return Shipment{}, err
	}
	if courierID == "" {
		return Shipment{}, fmt.Errorf("shipment: courier id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	paymentStatus, err := s.repo.LockOrderPayment(ctx, tx, orderID)
	if err != nil {
		return Shipment{}, err
	}
	if paymentStatus != "completed" {
		return Shipment{}, ErrPaymentRequired
	}

	otp, err := generateOTP()
	if err != nil {
		return Shipment{}, err
	}

	sh, err := s.repo.Insert(ctx, tx, Shipment{
		ID:             s.idGen(),
		OrderID:        orderID,
		CourierID:      courierID,
		Status:         StatusCreated,
		TrackingNumber: trackingNumber(s.idGen()),
		OTPCode:        otp,
	})
	if err != nil {
		return Shipment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit create: %w", err)
	}
	return sh, nil
}

func (s *Service) Get(ctx context.Context, shipmentID string) (Shipment, error) {
	return s.repo.Get(ctx, shipmentID)
}

// AdvanceParams carries a courier's status report. RawStatus accepts carrier
// aliases and any casing; OTP is consulted only for the final hop.
type AdvanceParams struct {
	ShipmentID string
	RawStatus  string
	OTP        string
}

// Advance moves the shipment one step forward. Only the assigned courier may
// report progress, and reaching DELIVERED requires the OTP issued at
// creation and stamps the actual delivery time.
func (s *Service) Advance(ctx context.Context, actor policy.Actor, p AdvanceParams) (Shipment, error) {
	if err := policy.Require(actor, policy.ActionAdvanceShipment); err != nil {
		return Shipment{}, err
	}
	target, err := Normalize(p.RawStatus)
	if err != nil {
		return Shipment{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin advance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sh, err := s.repo.GetForUpdate(ctx, tx, p.ShipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if sh.CourierID != actor.ID {
		return Shipment{}, policy.ErrForbidden
	}
	if !CanTransition(sh.Status, target) {
		return Shipment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sh.Status, target)
	}

	var deliveredAt *time.Time
	if target == StatusDelivered {
		if p.OTP != sh.OTPCode {
			return Shipment{}, ErrInvalidOTP
		}
		at := s.now()
		deliveredAt = &at
	}

	if err := s.repo.UpdateStatus(ctx, tx, sh.ID, sh.Status, target, deliveredAt); err != nil {
		return Shipment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit advance: %w", err)
	}

	sh.Status = target
	sh.ActualDelivery = deliveredAt
	return sh, nil
}

// generateOTP draws a uniform six-digit code from crypto/rand.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("shipment: generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// trackingNumber derives a human-quotable reference from a fresh id.
func trackingNumber(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) > 12 {
		compact = compact[:12]
	}
	return "SK-" + compact
}
