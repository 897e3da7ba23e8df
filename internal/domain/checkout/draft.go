package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/int-market-project/international-market/internal/domain/order"
)

// ErrDraftNotFound is returned when a customer has no active checkout draft.
// Callers treat this as stale client state and redirect back to the cart.
var ErrDraftNotFound = errors.New("checkout draft not found")

// Draft is the transient pre-order snapshot of cart contents and computed
// totals. At most one draft is active per customer; a new draft silently
// replaces the old one. It is consumed when an order is materialized.
type Draft struct {
	CustomerID int64
	Items      []order.Item

	Totals Totals

	CouponCode string

	// ShippingAddress and Notes are filled in mid-flow: before the customer
	// is redirected to an external payment gateway, so the completion
	// callback can materialize the order without request context.
	ShippingAddress *order.Address
	Notes           string

	UpdatedAt time.Time
}

// DraftRepository holds the single active draft per customer. No expiry is
// enforced here; staleness is the caller's responsibility.
type DraftRepository interface {
	// Upsert replaces or creates the customer's draft. No history is kept.
	Upsert(ctx context.Context, d *Draft) error
	Get(ctx context.Context, customerID int64) (*Draft, error)
	Delete(ctx context.Context, customerID int64) error
}
