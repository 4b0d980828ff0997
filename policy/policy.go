package policy

import (
	"context"
	"errors"
)

// ErrForbidden signals the actor's role does not grant the requested action.
var ErrForbidden = errors.New("policy: forbidden")

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleStaff    Role = "staff"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated identity on whose behalf a core operation runs.
// It is carried explicitly through every call instead of being read from
// ambient session state.
type Actor struct {
	ID   string
	Role Role
}

type Action string

const (
	ActionSubmitDocument     Action = "verification.submit_document"
	ActionDecideVerification Action = "verification.decide"
	ActionSetStanding        Action = "verification.set_standing"
	ActionCreateOrder        Action = "order.create"
	ActionAdvanceOrder       Action = "order.advance"
	ActionInitiatePayment    Action = "payment.initiate"
	ActionCreateShipment     Action = "shipment.create"
	ActionAdvanceShipment    Action = "shipment.advance"
	ActionOpenDispute        Action = "dispute.open"
	ActionRespondDispute     Action = "dispute.respond"
	ActionReviewDispute      Action = "dispute.review"
	ActionResolveDispute     Action = "dispute.resolve"
)

// capabilities is the single authoritative role table. Handlers and services
// all consult it through Allows/Require; there are no per-call-site role checks.
var capabilities = map[Action][]Role{
	ActionSubmitDocument:     {RoleSeller, RoleStaff, RoleAdmin},
	ActionDecideVerification: {RoleAdmin},
	ActionSetStanding:        {RoleAdmin},
	ActionCreateOrder:        {RoleCustomer, RoleStaff, RoleAdmin},
	ActionAdvanceOrder:       {RoleSeller, RoleStaff, RoleAdmin},
	ActionInitiatePayment:    {RoleCustomer, RoleStaff, RoleAdmin},
	ActionCreateShipment:     {RoleStaff, RoleAdmin},
	ActionAdvanceShipment:    {RoleCourier},
	ActionOpenDispute:        {RoleCustomer, RoleStaff, RoleAdmin},
	ActionRespondDispute:     {RoleSeller},
	ActionReviewDispute:      {RoleStaff, RoleAdmin},
	ActionResolveDispute:     {RoleAdmin},
}

// Allows reports whether the actor's role may perform the action.
func Allows(actor Actor, action Action) bool {
	for _, role := range capabilities[action] {
		if actor.Role == role {
			return true
		}
	}
	return false
}

// Require returns ErrForbidden unless the actor may perform the action.
func Require(actor Actor, action Action) error {
	if !Allows(actor, action) {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// FromContext extracts the actor placed by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
