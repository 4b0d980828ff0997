package dispute

import "time"

// Type classifies a complaint. It doubles as the strike-reason enum: on
// resolution the admin picks a reason freely, not necessarily the type the
// customer reported.
type Type string

const (
	TypeLateShipping Type = "late_shipping"
	TypeWrongItem    Type = "wrong_item"
	TypeFraud        Type = "fraud"
	TypeOther        Type = "other"
)

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusOpen            Status = "open"
	StatusSellerResponded Status = "seller_responded"
	StatusUnderReview     Status = "under_review"
	StatusResolved        Status = "resolved"
)

// Resolution is the admin's final verdict.
type Resolution string

const (
	ResolutionCustomerFavor Resolution = "customer_favor"
	ResolutionSellerFavor   Resolution = "seller_favor"
	ResolutionRefund        Resolution = "refund"
	ResolutionPartial       Resolution = "partial"
)

// strikeWeights is the fixed penalty table. "other" carries no weight: the
// admin attaching it resolves without consequence for the seller.
var strikeWeights = map[Type]int{
	TypeLateShipping: 1,
	TypeWrongItem:    2,
	TypeFraud:        3,
	TypeOther:        0,
}

// StrikeWeight returns the penalty units for a strike reason.
func StrikeWeight(reason Type) int {
	return strikeWeights[reason]
}

func validType(t Type) bool {
	_, ok := strikeWeights[t]
	return ok
}

func validResolution(r Resolution) bool {
	switch r {
	case ResolutionCustomerFavor, ResolutionSellerFavor, ResolutionRefund, ResolutionPartial:
		return true
	}
	return false
}

// Dispute mirrors the disputes table. SellerUserID is joined in from the
// seller profile so the respond path can match the acting user.
type Dispute struct {
	ID             string
	OrderID        string
	SellerID       string
	SellerUserID   string
	ReporterID     string
	Type           Type
	Status         Status
	Description    string
	SellerResponse string
	Resolution     *Resolution
	StrikeReason   *Type
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}
