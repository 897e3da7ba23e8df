package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// MaterializeInput carries everything needed to turn a checkout draft into a
// persisted order. Pricing is copied verbatim; the draft is the price contract
// the customer agreed to, so nothing is re-fetched or re-validated here.
type MaterializeInput struct {
	CustomerID      int64
	Items           []Item
	Pricing         Pricing
	CouponCode      string
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	Notes           string
}

// Materializer converts checkout drafts into persisted orders.
type Materializer struct {
	orders Repository
	events Events
	now    func() time.Time
}

// NewMaterializer creates a Materializer backed by the given repository.
// events may be nil when no event bus is wired.
func NewMaterializer(orders Repository, events Events) *Materializer {
	return &Materializer{orders: orders, events: events, now: time.Now}
}

// Materialize allocates an order id from the atomic sequence and persists a
// new order in status pending with ordered_at set and every other lifecycle
// timestamp null. The caller owns draft cleanup; if Materialize fails the
// draft must be left in place.
func (m *Materializer) Materialize(ctx context.Context, in MaterializeInput) (*Order, error) {
	id, err := m.orders.NextID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "allocate order id")
	}

	o := &Order{
		ID:              id,
		CustomerID:      in.CustomerID,
		Status:          StatusPending,
		Items:           in.Items,
		Pricing:         in.Pricing,
		CouponCode:      in.CouponCode,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		ShippingAddress: in.ShippingAddress,
		OrderedAt:       m.now().UTC(),
	}
	if err := m.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "create order %d", id)
	}

	if m.events != nil {
		if err := m.events.OrderPlaced(ctx, o); err != nil {
			zctx.From(ctx).Warn("publish order placed event",
				zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}

	return o, nil
}
