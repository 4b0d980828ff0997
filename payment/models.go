package payment

import "time"

// AttemptStatus is the lifecycle of one charge cycle with the provider.
type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptExpired   AttemptStatus = "expired"
)

// IsTerminal reports whether the attempt can no longer change.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptInitiated
}

// Outcome is what the provider eventually reports for a charge.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Attempt is one correlated request/confirmation cycle with the mobile-money
// provider. At most one non-terminal attempt exists per order at any time.
type Attempt struct {
	ID          string
	OrderID     string
	Phone       string
	ProviderRef string
	Status      AttemptStatus
	Amount      int64
	CreatedAt   time.Time
	CompletedAt *time.Time
}
