package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Transitions between states are
// governed by the table behind CanTransition.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPacked         Status = "packed"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCanceled       Status = "canceled"
)

// allowedTransitions maps each status to the set of statuses it may move to.
// Delivered and canceled are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCanceled},
	StatusConfirmed:      {StatusPacked},
	StatusPacked:         {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {},
	StatusCanceled:       {},
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether s has no outbound transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// CanTransition reports whether an order in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod distinguishes the two checkout flows.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// Item is a product/quantity snapshot frozen into the order at checkout.
// Prices are not stored per line; they are baked into the order subtotal.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Address is the shipping destination snapshot stored on the order. It is a
// copy of what the customer submitted, not a reference to a live record.
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Pricing is the full monetary breakdown carried from the checkout draft into
// the order verbatim.
type Pricing struct {
	Subtotal           decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	Tax                decimal.Decimal
	ShippingFee        decimal.Decimal
	Total              decimal.Decimal
}

// Order is a materialized customer order. It is created once by the
// Materializer and mutated only through the StateMachine.
type Order struct {
	ID         int64
	CustomerID int64
	Status     Status
	Items      []Item

	Pricing    Pricing
	CouponCode string

	PaymentMethod PaymentMethod
	TransactionID string

	// Notes is an append-only audit log. Status transitions append
	// timestamped, status-tagged blocks; prior content is never rewritten.
	Notes string

	ShippingAddress Address

	OrderedAt        time.Time
	ConfirmedAt      *time.Time
	PackedAt         *time.Time
	OutForDeliveryAt *time.Time
	DeliveredAt      *time.Time
	CanceledAt       *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// NextID allocates the next order id from an atomic sequence. Two
	// concurrent calls never observe the same value.
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetForCustomer(ctx context.Context, id, customerID int64) (*Order, error)
	LatestIDForCustomer(ctx context.Context, customerID int64) (int64, error)
	AttachTransaction(ctx context.Context, orderID int64, transactionID string) error
	// ApplyTransition persists the status, the single timestamp set for the
	// new status, and the updated notes of o.
	ApplyTransition(ctx context.Context, o *Order) error
	ListOpen(ctx context.Context) ([]Order, error)
}
