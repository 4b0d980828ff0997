package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"soko/order"
	"soko/policy"
	"soko/verification"
)

var (
	// ErrInvalidOrderState rejects a complaint against an order that has
	// not shipped yet.
	ErrInvalidOrderState = errors.New("dispute: order not shipped or delivered")
	// ErrAlreadyResolved signals the dispute reached its terminal status;
	// resolution is final.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrInvalidTransition signals a lifecycle move outside open ->
	// seller_responded -> under_review -> resolved.
	ErrInvalidTransition = errors.New("dispute: invalid status transition")
	// ErrUnknownType signals a dispute type or strike reason outside the enum.
	ErrUnknownType = errors.New("dispute: unknown dispute type")
	// ErrUnknownResolution signals a resolution outside the enum.
	ErrUnknownResolution = errors.New("dispute: unknown resolution")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StrikeApplier is the narrow slice of the verification engine the resolver
// writes through. The increment and the standing recompute happen inside the
// resolver's transaction, so no reader can see a strike count ahead of its
// standing.
type StrikeApplier interface {
	ApplyStrikes(ctx context.Context, tx pgx.Tx, sellerID string, strikes int) (verification.StrikeResult, error)
}

// EventWriter appends an outbox record inside the transaction; nil disables it.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service adjudicates complaints and converts resolutions into strikes
// against the seller's standing.
type Service struct {
	pool    TxBeginner
	repo    Repository
	strikes StrikeApplier
	events  EventWriter
	idGen   func() string
	now     func() time.Time
}

func NewService(pool TxBeginner, repo Repository, strikes StrikeApplier) *Service {
	return &Service{
		pool:    pool,
		repo:    repo,
		strikes: strikes,
		idGen:   func() string { return uuid.NewString() },
		now:     time.Now,
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

// OpenParams carries a customer's complaint.
type OpenParams struct {
	OrderID     string
	Type        Type
	Description string
}

// Open files a complaint against an order that has shipped or been delivered.
func (s *Service) Open(ctx context.Context, actor policy.Actor, p OpenParams) (Dispute, error) {
	if err := policy.Require(actor, policy.ActionOpenDispute); err != nil {
		return Dispute{}, err
	}
	if !validType(p.Type) {
		return Dispute{}, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}

	sellerID, customerID, status, err := s.repo.OrderSummary(ctx, p.OrderID)
	if err != nil {
		return Dispute{}, err
	}
	// Customers complain about their own orders; staff and admin file on
	// anyone's behalf.
	if actor.Role == policy.RoleCustomer && customerID != actor.ID {
		return Dispute{}, policy.ErrForbidden
	}
	if status != order.StatusShipped && status != order.StatusDelivered {
		return Dispute{}, fmt.Errorf("%w: order is %s", ErrInvalidOrderState, status)
	}

	return s.repo.Insert(ctx, Dispute{
		ID:          s.idGen(),
		OrderID:     p.OrderID,
		SellerID:    sellerID,
		ReporterID:  actor.ID,
		Type:        p.Type,
		Status:      StatusOpen,
		Description: p.Description,
	})
}

func (s *Service) Get(ctx context.Context, disputeID string) (Dispute, error) {
	return s.repo.Get(ctx, disputeID)
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Dispute, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// Respond records the seller-of-record's side and moves the dispute to
// seller_responded. Only legal while the dispute is open.
func (s *Service) Respond(ctx context.Context, actor policy.Actor, disputeID, response string) error {
	if err := policy.Require(actor, policy.ActionRespondDispute); err != nil {
		return err
	}

	d, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.SellerUserID != actor.ID {
		return policy.ErrForbidden
	}
	switch d.Status {
	case StatusOpen:
	case StatusResolved:
		return ErrAlreadyResolved
	default:
		return fmt.Errorf("%w: respond while %s", ErrInvalidTransition, d.Status)
	}

	if err := s.repo.SetResponse(ctx, disputeID, response); err != nil {
		if errors.Is(err, ErrNotFound) {
			// lost a race with another lifecycle move
			return fmt.Errorf("%w: respond while not open", ErrInvalidTransition)
		}
		return err
	}
	return nil
}

// Review pulls a dispute into staff adjudication. Legal from open or
// seller_responded; the seller loses the chance to respond once review starts.
func (s *Service) Review(ctx context.Context, actor policy.Actor, disputeID string) error {
	if err := policy.Require(actor, policy.ActionReviewDispute); err != nil {
		return err
	}

	d, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return err
	}
	switch d.Status {
	case StatusOpen, StatusSellerResponded:
	case StatusResolved:
		return ErrAlreadyResolved
	default:
		return fmt.Errorf("%w: review while %s", ErrInvalidTransition, d.Status)
	}

	if err := s.repo.SetStatus(ctx, disputeID, d.Status, StatusUnderReview); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: review while not reviewable", ErrInvalidTransition)
		}
		return err
	}
	return nil
}

// ResolveParams carries the admin's verdict. StrikeReason is optional: left
// nil the dispute closes with no consequence for the seller; set, the weight
// table decides the penalty regardless of the reported dispute type.
type ResolveParams struct {
	DisputeID    string
	Resolution   Resolution
	StrikeReason *Type
}

// Resolve closes the dispute and applies any strike atomically with the
// seller's standing recompute. Resolution is final.
func (s *Service) Resolve(ctx context.Context, actor policy.Actor, p ResolveParams) (verification.StrikeResult, error) {
	if err := policy.Require(actor, policy.ActionResolveDispute); err != nil {
		return verification.StrikeResult{}, err
	}
	if !validResolution(p.Resolution) {
		return verification.StrikeResult{}, fmt.Errorf("%w: %q", ErrUnknownResolution, p.Resolution)
	}
	if p.StrikeReason != nil && !validType(*p.StrikeReason) {
		return verification.StrikeResult{}, fmt.Errorf("%w: strike reason %q", ErrUnknownType, *p.StrikeReason)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return verification.StrikeResult{}, fmt.Errorf("dispute: begin resolve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, p.DisputeID)
	if err != nil {
		return verification.StrikeResult{}, err
	}
	if d.Status == StatusResolved {
		return verification.StrikeResult{}, ErrAlreadyResolved
	}

	if err := s.repo.Resolve(ctx, tx, p.DisputeID, p.Resolution, p.StrikeReason); err != nil {
		return verification.StrikeResult{}, err
	}

	var result verification.StrikeResult
	if p.StrikeReason != nil {
		if weight := StrikeWeight(*p.StrikeReason); weight > 0 {
			result, err = s.strikes.ApplyStrikes(ctx, tx, d.SellerID, weight)
			if err != nil {
				return verification.StrikeResult{}, err
			}
		}
	}

	if s.events != nil {
		payload := map[string]any{
			"dispute_id": d.ID,
			"order_id":   d.OrderID,
			"seller_id":  d.SellerID,
			"resolution": p.Resolution,
		}
		if p.StrikeReason != nil {
			payload["strike_reason"] = *p.StrikeReason
			payload["standing"] = result.Standing
		}
		if err := s.events.Enqueue(ctx, tx, "dispute.resolved", payload); err != nil {
			return verification.StrikeResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return verification.StrikeResult{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return result, nil
}
