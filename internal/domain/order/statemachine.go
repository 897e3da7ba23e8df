package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InvalidTransitionError indicates a status change not present in the
// allowed-transitions table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// TransactionMarker is the slice of the payment layer the state machine needs
// for COD reconciliation on delivery.
type TransactionMarker interface {
	MarkSucceeded(ctx context.Context, transactionID string) error
}

// StateMachine applies status transitions to orders: legality check, status
// timestamp, audit note, and the COD delivery side effect.
type StateMachine struct {
	orders Repository
	txs    TransactionMarker
	events Events
	now    func() time.Time
}

// NewStateMachine creates a StateMachine over the given order repository.
// txs and events may be nil when reconciliation or publishing is not wired.
func NewStateMachine(orders Repository, txs TransactionMarker, events Events) *StateMachine {
	return &StateMachine{orders: orders, txs: txs, events: events, now: time.Now}
}

// Transition moves the order to next, stamping the timestamp field associated
// with next and appending adminMessage (when non-empty) to the order notes.
//
// When next is delivered and the order was paid cash-on-delivery with a linked
// transaction, that transaction is marked succeeded; a failure there is logged
// and swallowed, the order status is the source of truth.
func (sm *StateMachine) Transition(ctx context.Context, orderID int64, next Status, adminMessage string) (*Order, error) {
	o, err := sm.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !next.Valid() {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}
	if !o.Status.CanTransition(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	prev := o.Status
	now := sm.now().UTC()
	o.Status = next
	sm.stamp(o, next, now)

	if msg := strings.TrimSpace(adminMessage); msg != "" {
		o.Notes = appendNote(o.Notes, next, msg, now)
	}

	if err := sm.orders.ApplyTransition(ctx, o); err != nil {
		return nil, err
	}

	if next == StatusDelivered && o.PaymentMethod == PaymentCOD && o.TransactionID != "" && sm.txs != nil {
		if err := sm.txs.MarkSucceeded(ctx, o.TransactionID); err != nil {
			zctx.From(ctx).Warn("cod delivery reconciliation failed",
				zap.Int64("order_id", o.ID),
				zap.String("transaction_id", o.TransactionID),
				zap.Error(err),
			)
		}
	}

	if sm.events != nil {
		if err := sm.events.StatusChanged(ctx, o, prev); err != nil {
			zctx.From(ctx).Warn("publish status change event",
				zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}

	return o, nil
}

// stamp sets exactly the one timestamp field associated with next.
func (sm *StateMachine) stamp(o *Order, next Status, now time.Time) {
	switch next {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusPacked:
		o.PackedAt = &now
	case StatusOutForDelivery:
		o.OutForDeliveryAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCanceled:
		o.CanceledAt = &now
	}
}

// appendNote appends a timestamped, status-tagged block to prior notes,
// preserving existing content verbatim.
func appendNote(prev string, status Status, msg string, now time.Time) string {
	stamp := now.Format("2006-01-02 15:04 UTC")
	block := fmt.Sprintf("[ADMIN %s @ %s]\n%s", strings.ToUpper(string(status)), stamp, msg)
	if strings.TrimSpace(prev) == "" {
		return block
	}
	return strings.TrimRight(prev, "\n") + "\n\n" + block
}
