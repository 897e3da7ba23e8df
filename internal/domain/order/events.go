package order

import "context"

// Events publishes order lifecycle notifications to interested downstream
// consumers. Publishing is best-effort from the caller's point of view:
// errors are logged, never surfaced to the customer flow.
type Events interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, from Status) error
}
