package dispute

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"soko/order"
	"soko/policy"
	"soko/verification"
)

var (
	reporter = policy.Actor{ID: "cust-1", Role: policy.RoleCustomer}
	seller   = policy.Actor{ID: "user-s1", Role: policy.RoleSeller}
	admin    = policy.Actor{ID: "admin-1", Role: policy.RoleAdmin}
)

func newTestService(repo *fakeRepo, strikes *fakeStrikes) *Service {
	seq := 0
	return NewService(&fakePool{}, repo, strikes).
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("d-%d", seq)
		})
}

func strikeReason(t Type) *Type { return &t }

func TestOpenRequiresShippedOrDelivered(t *testing.T) {
	repo := newFakeRepo()
	repo.putOrder("o-pending", "seller-1", order.StatusPending)
	repo.putOrder("o-shipped", "seller-1", order.StatusShipped)
	repo.putOrder("o-delivered", "seller-1", order.StatusDelivered)
	svc := newTestService(repo, newFakeStrikes())

	_, err := svc.Open(context.Background(), reporter, OpenParams{OrderID: "o-pending", Type: TypeWrongItem})
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState, got %v", err)
	}

	for _, id := range []string{"o-shipped", "o-delivered"} {
		d, err := svc.Open(context.Background(), reporter, OpenParams{OrderID: id, Type: TypeWrongItem, Description: "box held a candle"})
		if err != nil {
			t.Fatalf("open against %s: %v", id, err)
		}
		if d.Status != StatusOpen {
			t.Fatalf("status = %s, want open", d.Status)
		}
		if d.SellerID != "seller-1" {
			t.Fatalf("seller id = %q, want the order's seller", d.SellerID)
		}
	}
}

func TestOpenCustomerScopedToOwnOrders(t *testing.T) {
	repo := newFakeRepo()
	repo.putOrder("o-shipped", "seller-1", order.StatusShipped)
	svc := newTestService(repo, newFakeStrikes())

	stranger := policy.Actor{ID: "cust-2", Role: policy.RoleCustomer}
	_, err := svc.Open(context.Background(), stranger, OpenParams{OrderID: "o-shipped", Type: TypeWrongItem})
	if !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another customer's order, got %v", err)
	}

	// staff file on the customer's behalf
	staff := policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
	if _, err := svc.Open(context.Background(), staff, OpenParams{OrderID: "o-shipped", Type: TypeWrongItem}); err != nil {
		t.Fatalf("staff open: unexpected error: %v", err)
	}
}

func TestOpenRejectsUnknownType(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStrikes())

	_, err := svc.Open(context.Background(), reporter, OpenParams{OrderID: "o-1", Type: Type("vibes")})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRespondSellerOfRecordOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.putDispute(Dispute{ID: "d-1", OrderID: "o-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
	svc := newTestService(repo, newFakeStrikes())

	otherSeller := policy.Actor{ID: "user-s2", Role: policy.RoleSeller}
	if err := svc.Respond(context.Background(), otherSeller, "d-1", "not mine"); !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("stranger seller: expected ErrForbidden, got %v", err)
	}

	if err := svc.Respond(context.Background(), seller, "d-1", "the courier swapped boxes"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got := repo.disputes["d-1"].Status; got != StatusSellerResponded {
		t.Fatalf("status = %s, want seller_responded", got)
	}

	// a second response is no longer legal
	err := svc.Respond(context.Background(), seller, "d-1", "again")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReviewLifecycle(t *testing.T) {
	repo := newFakeRepo()
	repo.putDispute(Dispute{ID: "d-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusSellerResponded})
	svc := newTestService(repo, newFakeStrikes())

	staff := policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
	if err := svc.Review(context.Background(), staff, "d-1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if got := repo.disputes["d-1"].Status; got != StatusUnderReview {
		t.Fatalf("status = %s, want under_review", got)
	}

	// respond is closed off once review starts
	err := svc.Respond(context.Background(), seller, "d-1", "late response")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestResolveAppliesWeightedStrike(t *testing.T) {
	repo := newFakeRepo()
	repo.putDispute(Dispute{ID: "d-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusUnderReview})
	strikes := newFakeStrikes()
	svc := newTestService(repo, strikes)

	result, err := svc.Resolve(context.Background(), admin, ResolveParams{
		DisputeID:    "d-1",
		Resolution:   ResolutionCustomerFavor,
		StrikeReason: strikeReason(TypeWrongItem),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.StrikeCount != 2 {
		t.Fatalf("strike count = %d, want 2", result.StrikeCount)
	}
	if got := repo.disputes["d-1"].Status; got != StatusResolved {
		t.Fatalf("status = %s, want resolved", got)
	}
}

func TestResolveEscalatesStanding(t *testing.T) {
	repo := newFakeRepo()
	strikes := newFakeStrikes()
	svc := newTestService(repo, strikes)

	resolve := func(id string, reason Type) verification.StrikeResult {
		t.Helper()
		repo.putDispute(Dispute{ID: id, SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
		result, err := svc.Resolve(context.Background(), admin, ResolveParams{
			DisputeID:    id,
			Resolution:   ResolutionCustomerFavor,
			StrikeReason: strikeReason(reason),
		})
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		return result
	}

	// three late shipments, weight 1 each
	var result verification.StrikeResult
	for i := 1; i <= 3; i++ {
		result = resolve(fmt.Sprintf("late-%d", i), TypeLateShipping)
	}
	if result.StrikeCount != 3 || result.Standing != verification.StandingSuspended {
		t.Fatalf("after 3 late strikes: count=%d standing=%s, want 3/suspended", result.StrikeCount, result.Standing)
	}

	// two fraud resolutions, weight 3 each, push past the ban threshold
	resolve("fraud-1", TypeFraud)
	result = resolve("fraud-2", TypeFraud)
	if result.StrikeCount < 5 || result.Standing != verification.StandingBanned {
		t.Fatalf("after fraud strikes: count=%d standing=%s, want >=5/banned", result.StrikeCount, result.Standing)
	}
}

func TestResolveWithoutStrikeIsConsequenceFree(t *testing.T) {
	repo := newFakeRepo()
	strikes := newFakeStrikes()
	svc := newTestService(repo, strikes)

	repo.putDispute(Dispute{ID: "d-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
	if _, err := svc.Resolve(context.Background(), admin, ResolveParams{DisputeID: "d-1", Resolution: ResolutionSellerFavor}); err != nil {
		t.Fatalf("resolve without reason: %v", err)
	}

	// "other" carries weight zero, so it must not touch the seller either
	repo.putDispute(Dispute{ID: "d-2", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
	if _, err := svc.Resolve(context.Background(), admin, ResolveParams{DisputeID: "d-2", Resolution: ResolutionPartial, StrikeReason: strikeReason(TypeOther)}); err != nil {
		t.Fatalf("resolve with zero-weight reason: %v", err)
	}

	if strikes.calls != 0 {
		t.Fatalf("strike applier called %d times, want 0", strikes.calls)
	}
}

func TestResolveIsFinal(t *testing.T) {
	repo := newFakeRepo()
	repo.putDispute(Dispute{ID: "d-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
	svc := newTestService(repo, newFakeStrikes())

	if _, err := svc.Resolve(context.Background(), admin, ResolveParams{DisputeID: "d-1", Resolution: ResolutionRefund}); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	_, err := svc.Resolve(context.Background(), admin, ResolveParams{DisputeID: "d-1", Resolution: ResolutionRefund})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	// a resolved dispute also rejects late responses
	err = svc.Respond(context.Background(), seller, "d-1", "too late")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved on respond, got %v", err)
	}
}

func TestResolveAdminOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.putDispute(Dispute{ID: "d-1", SellerID: "seller-1", SellerUserID: seller.ID, Status: StatusOpen})
	svc := newTestService(repo, newFakeStrikes())

	staff := policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
	_, err := svc.Resolve(context.Background(), staff, ResolveParams{DisputeID: "d-1", Resolution: ResolutionRefund})
	if !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// --- fakes ---

type orderSummary struct {
	sellerID   string
	customerID string
	status     order.Status
}

type fakeRepo struct {
	orders   map[string]orderSummary
	disputes map[string]*Dispute
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:   make(map[string]orderSummary),
		disputes: make(map[string]*Dispute),
	}
}

func (f *fakeRepo) putOrder(id, sellerID string, status order.Status) {
	f.orders[id] = orderSummary{sellerID: sellerID, customerID: reporter.ID, status: status}
}

func (f *fakeRepo) putDispute(d Dispute) {
	stored := d
	f.disputes[d.ID] = &stored
}

func (f *fakeRepo) OrderSummary(ctx context.Context, orderID string) (string, string, order.Status, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return "", "", "", ErrOrderNotFound
	}
	return o.sellerID, o.customerID, o.status, nil
}

func (f *fakeRepo) Insert(ctx context.Context, d Dispute) (Dispute, error) {
	d.SellerUserID = seller.ID
	f.putDispute(d)
	return d, nil
}

func (f *fakeRepo) Get(ctx context.Context, disputeID string) (Dispute, error) {
	d, ok := f.disputes[disputeID]
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return *d, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Dispute, error) {
	return f.Get(ctx, disputeID)
}

func (f *fakeRepo) SetResponse(ctx context.Context, disputeID, response string) error {
	d, ok := f.disputes[disputeID]
	if !ok || d.Status != StatusOpen {
		return ErrNotFound
	}
	d.SellerResponse = response
	d.Status = StatusSellerResponded
	return nil
}

func (f *fakeRepo) SetStatus(ctx context.Context, disputeID string, from, to Status) error {
	d, ok := f.disputes[disputeID]
	if !ok || d.Status != from {
		return ErrNotFound
	}
	d.Status = to
	return nil
}

func (f *fakeRepo) Resolve(ctx context.Context, tx pgx.Tx, disputeID string, resolution Resolution, reason *Type) error {
	d, ok := f.disputes[disputeID]
	if !ok || d.Status == StatusResolved {
		return ErrNotFound
	}
	d.Status = StatusResolved
	d.Resolution = &resolution
	d.StrikeReason = reason
	return nil
}

func (f *fakeRepo) ListByOrder(ctx context.Context, orderID string) ([]Dispute, error) {
	var out []Dispute
	for _, d := range f.disputes {
		if d.OrderID == orderID {
			out = append(out, *d)
		}
	}
	return out, nil
}

type fakeStrikes struct {
	counts map[string]int
	calls  int
}

func newFakeStrikes() *fakeStrikes {
	return &fakeStrikes{counts: make(map[string]int)}
}

func (f *fakeStrikes) ApplyStrikes(ctx context.Context, tx pgx.Tx, sellerID string, strikes int) (verification.StrikeResult, error) {
	f.calls++
	f.counts[sellerID] += strikes
	count := f.counts[sellerID]
	standing := verification.StandingActive
	switch {
	case count >= 5:
		standing = verification.StandingBanned
	case count >= 3:
		standing = verification.StandingSuspended
	}
	return verification.StrikeResult{StrikeCount: count, Standing: standing}, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
