package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"soko/policy"
)

var (
	// ErrInvalidTransition is returned when a decision targets a seller
	// outside the pending state.
	ErrInvalidTransition = errors.New("verification: invalid transition")
	// ErrUnknownDocumentType signals a document type outside the enum.
	ErrUnknownDocumentType = errors.New("verification: unknown document type")
	// ErrUnknownTier signals a tier outside the enum.
	ErrUnknownTier = errors.New("verification: unknown tier")
	// ErrTierRequired signals a verified verdict arrived without a tier.
	ErrTierRequired = errors.New("verification: assigned tier required")
)

// Service gates whether an account may sell and at which tier, and owns the
// seller standing/strike record.
type Service struct {
	repo  Repository
	idGen func() string
	now   func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
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

// Onboard provisions a pending seller profile for a user account.
func (s *Service) Onboard(ctx context.Context, userID string) (Seller, error) {
	if userID == "" {
		return Seller{}, fmt.Errorf("verification: missing user id")
	}
	return s.repo.CreateSeller(ctx, userID)
}

// GetSeller returns the seller profile.
func (s *Service) GetSeller(ctx context.Context, sellerID string) (Seller, error) {
	return s.repo.GetSeller(ctx, sellerID)
}

// SubmitDocument appends a verification document. Owners may over- or
// under-submit freely before a decision; no tier check happens here.
func (s *Service) SubmitDocument(ctx context.Context, actor policy.Actor, ownerID string, docType DocumentType, fileRef string) (Document, error) {
	if err := policy.Require(actor, policy.ActionSubmitDocument); err != nil {
		return Document{}, err
	}
	if !validDocumentType(docType) {
		return Document{}, ErrUnknownDocumentType
	}
	if fileRef == "" {
		return Document{}, fmt.Errorf("verification: missing file reference")
	}

	seller, err := s.repo.GetSeller(ctx, ownerID)
	if err != nil {
		return Document{}, err
	}
	// Sellers may only file against their own profile; staff and admin may
	// file on anyone's behalf.
	if actor.Role == policy.RoleSeller && seller.UserID != actor.ID {
		return Document{}, policy.ErrForbidden
	}

	return s.repo.AppendDocument(ctx, Document{
		ID:      s.idGen(),
		OwnerID: ownerID,
		Type:    docType,
		FileRef: fileRef,
	})
}

// EvaluateTier compares the owner's uploaded document-type set against the
// tier's required set.
func (s *Service) EvaluateTier(ctx context.Context, ownerID string, tier Tier) (TierEvaluation, error) {
	if !validTier(tier) {
		return TierEvaluation{}, ErrUnknownTier
	}
	if _, err := s.repo.GetSeller(ctx, ownerID); err != nil {
		return TierEvaluation{}, err
	}

	uploaded, err := s.repo.DocumentTypes(ctx, ownerID)
	if err != nil {
		return TierEvaluation{}, err
	}
	return evaluate(uploaded, tier), nil
}

// DecideParams is an admin verdict on a pending seller. AssignedTier is the
// admin's choice and may differ from the tier the owner applied for.
type DecideParams struct {
	OwnerID      string
	Decision     Decision
	AssignedTier *Tier
	Notes        *string
}

// Decide applies the verdict. Only pending sellers may be decided; anything
// else is a conflict the caller must not retry blindly.
func (s *Service) Decide(ctx context.Context, actor policy.Actor, params DecideParams) (Seller, error) {
	if err := policy.Require(actor, policy.ActionDecideVerification); err != nil {
		return Seller{}, err
	}

	var tier *Tier
	switch params.Decision {
	case DecisionVerified:
		if params.AssignedTier == nil {
			return Seller{}, ErrTierRequired
		}
		if !validTier(*params.AssignedTier) {
			return Seller{}, ErrUnknownTier
		}
		tier = params.AssignedTier
	case DecisionRejected:
		tier = nil
	default:
		return Seller{}, fmt.Errorf("verification: unknown decision %q", params.Decision)
	}

	seller, err := s.repo.ApplyDecision(ctx, DecisionParams{
		SellerID:  params.OwnerID,
		Decision:  params.Decision,
		Tier:      tier,
		Notes:     params.Notes,
		DecidedBy: actor.ID,
		DecidedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return Seller{}, ErrInvalidTransition
		}
		return Seller{}, err
	}
	return seller, nil
}

// SetStanding overrides a seller's standing. The dispute resolver goes through
// ApplyStrikes instead; this is the manual admin path (reinstatement and the
// like), independent of verification status.
func (s *Service) SetStanding(ctx context.Context, actor policy.Actor, sellerID string, standing Standing) error {
	if err := policy.Require(actor, policy.ActionSetStanding); err != nil {
		return err
	}
	switch standing {
	case StandingActive, StandingSuspended, StandingBanned:
	default:
		return fmt.Errorf("verification: unknown standing %q", standing)
	}
	return s.repo.SetStanding(ctx, sellerID, standing)
}
