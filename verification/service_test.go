package verification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"soko/policy"
)

func TestSubmitDocument(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo).WithClock(func() time.Time { return time.Unix(1700000000, 0) })

	seller := repo.addSeller("seller-1", "user-1", StatusPending)
	owner := policy.Actor{ID: "user-1", Role: policy.RoleSeller}

	doc, err := svc.SubmitDocument(context.Background(), owner, seller.ID, DocNationalID, "files/id-front.jpg")
	if err != nil {
		t.Fatalf("submit: unexpected error: %v", err)
	}
	if doc.OwnerID != seller.ID || doc.Type != DocNationalID {
		t.Fatalf("unexpected document %+v", doc)
	}

	// another seller may not file against this profile
	stranger := policy.Actor{ID: "user-2", Role: policy.RoleSeller}
	if _, err := svc.SubmitDocument(context.Background(), stranger, seller.ID, DocNationalID, "files/x.jpg"); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// staff may
	staff := policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
	if _, err := svc.SubmitDocument(context.Background(), staff, seller.ID, DocBusinessPermit, "files/permit.pdf"); err != nil {
		t.Fatalf("staff submit: unexpected error: %v", err)
	}

	if _, err := svc.SubmitDocument(context.Background(), owner, seller.ID, DocumentType("passport_selfie"), "files/y.jpg"); !errors.Is(err, ErrUnknownDocumentType) {
		t.Fatalf("expected ErrUnknownDocumentType, got %v", err)
	}
}

func TestEvaluateTierUsesUploadedSet(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	seller := repo.addSeller("seller-1", "user-1", StatusPending)
	repo.docs[seller.ID] = []DocumentType{DocNationalID, DocBusinessPermit}

	eval, err := svc.EvaluateTier(context.Background(), seller.ID, Tier3)
	if err != nil {
		t.Fatalf("evaluate: unexpected error: %v", err)
	}
	if eval.Satisfied {
		t.Fatal("expected tier3 unsatisfied")
	}
	if len(eval.Missing) != 2 {
		t.Fatalf("expected 2 missing types, got %v", eval.Missing)
	}

	if _, err := svc.EvaluateTier(context.Background(), seller.ID, Tier("tier9")); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestDecide(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	admin := policy.Actor{ID: "admin-1", Role: policy.RoleAdmin}

	seller := repo.addSeller("seller-1", "user-1", StatusPending)

	// admin may under- or over-grant relative to what was applied for
	tier := Tier3
	decided, err := svc.Decide(context.Background(), admin, DecideParams{
		OwnerID:      seller.ID,
		Decision:     DecisionVerified,
		AssignedTier: &tier,
	})
	if err != nil {
		t.Fatalf("decide: unexpected error: %v", err)
	}
	if decided.Status != StatusVerified || decided.Tier == nil || *decided.Tier != Tier3 {
		t.Fatalf("unexpected seller after decision: %+v", decided)
	}

	// a second decision is a conflict
	_, err = svc.Decide(context.Background(), admin, DecideParams{
		OwnerID:  seller.ID,
		Decision: DecisionRejected,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDecideValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	admin := policy.Actor{ID: "admin-1", Role: policy.RoleAdmin}
	seller := repo.addSeller("seller-1", "user-1", StatusPending)

	if _, err := svc.Decide(context.Background(), admin, DecideParams{OwnerID: seller.ID, Decision: DecisionVerified}); !errors.Is(err, ErrTierRequired) {
		t.Fatalf("expected ErrTierRequired, got %v", err)
	}

	staff := policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
	if _, err := svc.Decide(context.Background(), staff, DecideParams{OwnerID: seller.ID, Decision: DecisionRejected}); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff, got %v", err)
	}

	rejected, err := svc.Decide(context.Background(), admin, DecideParams{OwnerID: seller.ID, Decision: DecisionRejected})
	if err != nil {
		t.Fatalf("reject: unexpected error: %v", err)
	}
	if rejected.Status != StatusRejected || rejected.Tier != nil {
		t.Fatalf("expected rejected seller without tier, got %+v", rejected)
	}
}

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	sellers map[string]Seller
	docs    map[string][]DocumentType
	nextID  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sellers: make(map[string]Seller),
		docs:    make(map[string][]DocumentType),
	}
}

func (f *fakeRepo) addSeller(id, userID string, status Status) Seller {
	s := Seller{ID: id, UserID: userID, Status: status, Standing: StandingActive}
	f.sellers[id] = s
	return s
}

func (f *fakeRepo) CreateSeller(ctx context.Context, userID string) (Seller, error) {
	f.nextID++
	return f.addSeller(fmt.Sprintf("seller-%d", f.nextID), userID, StatusPending), nil
}

func (f *fakeRepo) GetSeller(ctx context.Context, sellerID string) (Seller, error) {
	s, ok := f.sellers[sellerID]
	if !ok {
		return Seller{}, ErrSellerNotFound
	}
	return s, nil
}

func (f *fakeRepo) AppendDocument(ctx context.Context, doc Document) (Document, error) {
	f.docs[doc.OwnerID] = append(f.docs[doc.OwnerID], doc.Type)
	doc.SubmittedAt = time.Now().UTC()
	return doc, nil
}

func (f *fakeRepo) DocumentTypes(ctx context.Context, ownerID string) ([]DocumentType, error) {
	return f.docs[ownerID], nil
}

func (f *fakeRepo) ApplyDecision(ctx context.Context, params DecisionParams) (Seller, error) {
	s, ok := f.sellers[params.SellerID]
	if !ok {
		return Seller{}, ErrSellerNotFound
	}
	if s.Status != StatusPending {
		return Seller{}, ErrNotPending
	}
	s.Status = Status(params.Decision)
	s.Tier = params.Tier
	s.Notes = params.Notes
	s.DecidedBy = &params.DecidedBy
	s.DecidedAt = &params.DecidedAt
	f.sellers[s.ID] = s
	return s, nil
}

func (f *fakeRepo) SetStanding(ctx context.Context, sellerID string, standing Standing) error {
	s, ok := f.sellers[sellerID]
	if !ok {
		return ErrSellerNotFound
	}
	s.Standing = standing
	f.sellers[sellerID] = s
	return nil
}

func (f *fakeRepo) ApplyStrikes(ctx context.Context, tx pgx.Tx, sellerID string, strikes int) (StrikeResult, error) {
	s, ok := f.sellers[sellerID]
	if !ok {
		return StrikeResult{}, ErrSellerNotFound
	}
	s.StrikeCount += strikes
	s.Standing = standingFor(s.StrikeCount, s.Standing)
	f.sellers[sellerID] = s
	return StrikeResult{StrikeCount: s.StrikeCount, Standing: s.Standing}, nil
}
