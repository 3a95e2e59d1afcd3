package domain

import "time"

// OrderStatus tracks issuance progress for one payment.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// PaymentEvent is a confirmed payment delivered by the payment processor.
// Amounts are in minor currency units.
type PaymentEvent struct {
	IdempotencyKey string
	EventID        string
	Quantity       int
	AmountTotal    int64
	Currency       string
	BuyerID        string
	BuyerEmail     string
	Source         string
}

// Order anchors one payment's ticket batch; IdempotencyKey is unique.
// A refund that arrives before its payment is stored as a refunded order
// with no event and zero quantity.
type Order struct {
	ID             string
	IdempotencyKey string
	EventID        string
	BuyerID        string
	BuyerEmail     string
	Quantity       int
	AmountTotal    int64
	Currency       string
	Status         OrderStatus
	CreatedAt      time.Time
	CompletedAt    *time.Time
	NotifiedAt     *time.Time
}

// Matches reports whether a redelivered payment describes the same purchase.
func (o Order) Matches(p PaymentEvent) bool {
	return o.EventID == p.EventID && o.Quantity == p.Quantity && o.AmountTotal == p.AmountTotal
}
