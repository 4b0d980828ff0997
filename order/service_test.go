package order

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"soko/policy"
	"soko/verification"
)

var (
	customer = policy.Actor{ID: "cust-1", Role: policy.RoleCustomer}
	staff    = policy.Actor{ID: "staff-1", Role: policy.RoleStaff}
)

func verifiedSeller(id string) verification.Seller {
	tier := verification.Tier2
	return verification.Seller{
		ID:       id,
		Status:   verification.StatusVerified,
		Tier:     &tier,
		Standing: verification.StandingActive,
	}
}

func TestCreateComputesTotal(t *testing.T) {
	repo := newFakeOrderRepo()
	sellers := fakeSellers{"seller-1": verifiedSeller("seller-1")}
	svc := NewService(&fakePool{}, repo, sellers)

	o, err := svc.Create(context.Background(), customer, CreateParams{
		SellerID: "seller-1",
		Items: []Item{
			{Name: "mugs", UnitPrice: 500, Quantity: 2},
			{Name: "kettle", UnitPrice: 1000, Quantity: 1},
		},
		DeliveryMode: DeliveryCourier,
		ShippingFee:  300,
	})
	if err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}
	if o.Total != 2300 {
		t.Fatalf("total = %d, want 2300", o.Total)
	}
	if o.Status != StatusPending || o.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected initial state %s/%s", o.Status, o.PaymentStatus)
	}
	if o.CustomerID != customer.ID {
		t.Fatalf("customer id = %q, want %q", o.CustomerID, customer.ID)
	}
}

func TestCreateGatesOnSeller(t *testing.T) {
	pendingSeller := verification.Seller{ID: "seller-p", Status: verification.StatusPending, Standing: verification.StandingActive}
	bannedSeller := verifiedSeller("seller-b")
	bannedSeller.Standing = verification.StandingBanned

	sellers := fakeSellers{"seller-p": pendingSeller, "seller-b": bannedSeller}
	svc := NewService(&fakePool{}, newFakeOrderRepo(), sellers)

	items := []Item{{Name: "mugs", UnitPrice: 100, Quantity: 1}}

	_, err := svc.Create(context.Background(), customer, CreateParams{SellerID: "seller-p", Items: items, DeliveryMode: DeliveryPickup})
	if !errors.Is(err, ErrSellerNotVerified) {
		t.Fatalf("expected ErrSellerNotVerified, got %v", err)
	}

	_, err = svc.Create(context.Background(), customer, CreateParams{SellerID: "seller-b", Items: items, DeliveryMode: DeliveryPickup})
	if !errors.Is(err, ErrSellerBanned) {
		t.Fatalf("expected ErrSellerBanned, got %v", err)
	}

	_, err = svc.Create(context.Background(), customer, CreateParams{SellerID: "seller-p", Items: nil, DeliveryMode: DeliveryPickup})
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
}

func TestAdvanceValidatesEdges(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put("o-1", StatusPending, PaymentPending)
	svc := NewService(&fakePool{}, repo, fakeSellers{})

	if err := svc.Advance(context.Background(), staff, "o-1", StatusConfirmed); err != nil {
		t.Fatalf("pending->confirmed: unexpected error: %v", err)
	}
	if err := svc.Advance(context.Background(), staff, "o-1", StatusProcessing); err != nil {
		t.Fatalf("confirmed->processing: unexpected error: %v", err)
	}

	// unpaid order cannot ship
	err := svc.Advance(context.Background(), staff, "o-1", StatusShipped)
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}

	// regression is never legal
	err = svc.Advance(context.Background(), staff, "o-1", StatusPending)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAdvanceAfterPayment(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put("o-1", StatusProcessing, PaymentCompleted)
	svc := NewService(&fakePool{}, repo, fakeSellers{})

	if err := svc.Advance(context.Background(), staff, "o-1", StatusShipped); err != nil {
		t.Fatalf("processing->shipped: unexpected error: %v", err)
	}
	if err := svc.Advance(context.Background(), staff, "o-1", StatusDelivered); err != nil {
		t.Fatalf("shipped->delivered: unexpected error: %v", err)
	}

	// terminal: no further edges
	err := svc.Advance(context.Background(), staff, "o-1", StatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition out of delivered, got %v", err)
	}
}

func TestAdvanceSellerScopedToOwnOrders(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put("o-1", StatusPending, PaymentPending)
	repo.orders["o-1"].sellerUser = "user-s1"
	svc := NewService(&fakePool{}, repo, fakeSellers{})

	stranger := policy.Actor{ID: "user-s2", Role: policy.RoleSeller}
	err := svc.Advance(context.Background(), stranger, "o-1", StatusConfirmed)
	if !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another seller's order, got %v", err)
	}

	owner := policy.Actor{ID: "user-s1", Role: policy.RoleSeller}
	if err := svc.Advance(context.Background(), owner, "o-1", StatusConfirmed); err != nil {
		t.Fatalf("owner advance: unexpected error: %v", err)
	}

	// staff are not scoped to a seller
	if err := svc.Advance(context.Background(), staff, "o-1", StatusProcessing); err != nil {
		t.Fatalf("staff advance: unexpected error: %v", err)
	}
}

func TestAdvanceForbiddenForCustomer(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put("o-1", StatusPending, PaymentPending)
	svc := NewService(&fakePool{}, repo, fakeSellers{})

	err := svc.Advance(context.Background(), customer, "o-1", StatusConfirmed)
	if !errors.Is(err, policy.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// --- fakes ---

type fakeSellers map[string]verification.Seller

func (f fakeSellers) GetSeller(ctx context.Context, sellerID string) (verification.Seller, error) {
	s, ok := f[sellerID]
	if !ok {
		return verification.Seller{}, verification.ErrSellerNotFound
	}
	return s, nil
}

type orderState struct {
	status     Status
	payment    PaymentStatus
	sellerUser string
}

type fakeOrderRepo struct {
	orders map[string]*orderState
	saved  []Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*orderState)}
}

func (f *fakeOrderRepo) put(id string, status Status, payment PaymentStatus) {
	f.orders[id] = &orderState{status: status, payment: payment}
}

func (f *fakeOrderRepo) Insert(ctx context.Context, o Order) (Order, error) {
	f.saved = append(f.saved, o)
	f.put(o.ID, o.Status, o.PaymentStatus)
	return o, nil
}

func (f *fakeOrderRepo) Get(ctx context.Context, orderID string) (Order, error) {
	st, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return Order{ID: orderID, Status: st.status, PaymentStatus: st.payment}, nil
}

func (f *fakeOrderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (Order, error) {
	st, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return Order{ID: orderID, Status: st.status, PaymentStatus: st.payment, SellerUserID: st.sellerUser}, nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status Status) error {
	st, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	st.status = status
	return nil
}

func (f *fakeOrderRepo) ApplyPaymentResult(ctx context.Context, tx pgx.Tx, orderID string, result PaymentStatus, paymentID string) error {
	st, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	st.payment = result
	return nil
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
