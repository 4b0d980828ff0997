package verification

import "time"

// Status is a seller's document-verification state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Tier classifies a verified seller; it gates the document set that must be
// on file and groups the storefront.
type Tier string

const (
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// Standing is the account-level trust state, independent of the tier so a
// suspended seller can be reinstated without re-verification.
type Standing string

const (
	StandingActive    Standing = "active"
	StandingSuspended Standing = "suspended"
	StandingBanned    Standing = "banned"
)

type DocumentType string

const (
	DocNationalID     DocumentType = "national_id"
	DocBusinessPermit DocumentType = "business_permit"
	DocTaxCertificate DocumentType = "tax_certificate"
	DocBankStatement  DocumentType = "bank_statement"
)

// Seller mirrors the seller_profiles row owned by this package. StrikeCount
// and Standing are written only through ApplyStrikes/SetStanding.
type Seller struct {
	ID          string
	UserID      string
	Status      Status
	Tier        *Tier
	Standing    Standing
	StrikeCount int
	Notes       *string
	DecidedBy   *string
	DecidedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is one append-only verification upload. FileRef is an opaque
// pointer into whatever storage the surrounding layer uses.
type Document struct {
	ID          string
	OwnerID     string
	Type        DocumentType
	FileRef     string
	SubmittedAt time.Time
}

// Decision is the admin verdict applied to a pending seller.
type Decision string

const (
	DecisionVerified Decision = "verified"
	DecisionRejected Decision = "rejected"
)

// TierEvaluation reports whether an owner's uploads satisfy a tier.
type TierEvaluation struct {
	Satisfied bool
	Missing   []DocumentType
}

// StrikeResult is the post-increment strike ledger state.
type StrikeResult struct {
	StrikeCount int
	Standing    Standing
}
