package order

import "time"

// DeliveryMode selects how the order reaches the customer.
type DeliveryMode string

const (
	DeliveryCourier DeliveryMode = "courier"
	DeliveryPickup  DeliveryMode = "pickup"
)

// Item is one order line. Prices are integer minor units. Items are immutable
// once the order exists.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
}

// Order mirrors the orders row. Status and PaymentStatus are mutated only by
// this package.
type Order struct {
	ID              string
	SellerID        string
	SellerUserID    string // joined from seller_profiles; not a column
	CustomerID      string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentID       *string
	Items           []Item
	ShippingAddress *string
	DeliveryMode    DeliveryMode
	ShippingFee     int64
	Total           int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Subtotal is the item sum without the shipping fee.
func Subtotal(items []Item) int64 {
	var sum int64
	for _, it := range items {
		sum += it.UnitPrice * int64(it.Quantity)
	}
	return sum
}
