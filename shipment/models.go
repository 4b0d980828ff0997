package shipment

import "time"

// Shipment tracks physical delivery progress for one order, independent of
// the order's own status field.
type Shipment struct {
	ID             string
	OrderID        string
	CourierID      string
	Status         Status
	TrackingNumber string
	OTPCode        string
	ActualDelivery *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
