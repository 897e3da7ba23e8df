package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/customer"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
)

// Coordinator drives the two checkout flows over the shared draft, coupon,
// materializer and transaction primitives.
//
// COD is fully synchronous: coupon redemption happens before any money moves,
// so a redemption failure aborts the whole checkout. The online flow redeems
// only in the completion callback, after the provider has captured payment;
// a redemption failure there is logged but never blocks order creation.
type Coordinator struct {
	drafts       DraftRepository
	coupons      *coupon.Engine
	materializer *order.Materializer
	orders       order.Repository
	txs          payment.Repository
	carts        customer.CartService
	provider     payment.Provider

	successURL string
	cancelURL  string
	now        func() time.Time
}

// CoordinatorConfig carries the non-repository knobs of the Coordinator.
type CoordinatorConfig struct {
	// SuccessURL and CancelURL are where the provider sends the customer's
	// browser after the hosted session finishes.
	SuccessURL string
	CancelURL  string
}

// NewCoordinator wires a Coordinator. provider may be nil when online
// payments are disabled; PlaceCODOrder still works.
func NewCoordinator(
	cfg CoordinatorConfig,
	drafts DraftRepository,
	coupons *coupon.Engine,
	materializer *order.Materializer,
	orders order.Repository,
	txs payment.Repository,
	carts customer.CartService,
	provider payment.Provider,
) *Coordinator {
	return &Coordinator{
		drafts:       drafts,
		coupons:      coupons,
		materializer: materializer,
		orders:       orders,
		txs:          txs,
		carts:        carts,
		provider:     provider,
		successURL:   cfg.SuccessURL,
		cancelURL:    cfg.CancelURL,
		now:          time.Now,
	}
}

// ErrOnlinePaymentsDisabled is returned when no payment provider is configured.
var ErrOnlinePaymentsDisabled = errors.New("online payments are not configured")

// PlaceCODOrder runs the synchronous cash-on-delivery flow: redeem the draft's
// coupon (if any), materialize the order, create a pending transaction log,
// attach it, and clear the cart and draft. Every step is caller-visible; if
// materialization fails the draft is left intact so the customer keeps their
// cart contents.
func (c *Coordinator) PlaceCODOrder(ctx context.Context, customerID int64, addr order.Address, notes string) (int64, error) {
	draft, err := c.drafts.Get(ctx, customerID)
	if err != nil {
		return 0, err
	}

	if draft.CouponCode != "" {
		if err := c.coupons.Redeem(ctx, draft.CouponCode, customerID); err != nil {
			return 0, errors.Wrap(err, "redeem coupon")
		}
	}

	o, err := c.materializer.Materialize(ctx, order.MaterializeInput{
		CustomerID:      customerID,
		Items:           draft.Items,
		Pricing:         draft.Totals.Pricing(),
		CouponCode:      draft.CouponCode,
		PaymentMethod:   order.PaymentCOD,
		ShippingAddress: addr,
		Notes:           notes,
	})
	if err != nil {
		return 0, err
	}

	tx := &payment.Transaction{
		ID:            uuid.New().String(),
		OrderID:       o.ID,
		CustomerID:    customerID,
		PaymentMethod: order.PaymentCOD,
		Status:        payment.StatusPending,
		Amount:        draft.Totals.Total,
		CreatedAt:     c.now().UTC(),
	}
	if err := c.txs.Create(ctx, tx); err != nil {
		return 0, errors.Wrap(err, "create transaction log")
	}
	if err := c.orders.AttachTransaction(ctx, o.ID, tx.ID); err != nil {
		return 0, errors.Wrap(err, "attach transaction")
	}

	c.cleanup(ctx, customerID)

	return o.ID, nil
}

// StartOnlinePayment runs phase 1 of the gateway flow: persist the shipping
// address and notes into the draft (the gateway redirect loses request
// context) and open a hosted payment session for the draft total. No order
// exists until the provider's completion callback arrives.
func (c *Coordinator) StartOnlinePayment(ctx context.Context, customerID int64, addr order.Address, notes string) (string, error) {
	if c.provider == nil {
		return "", ErrOnlinePaymentsDisabled
	}

	draft, err := c.drafts.Get(ctx, customerID)
	if err != nil {
		return "", err
	}

	draft.ShippingAddress = &addr
	draft.Notes = notes
	if err := c.drafts.Upsert(ctx, draft); err != nil {
		return "", errors.Wrap(err, "save draft")
	}

	session, err := c.provider.CreateSession(ctx, payment.SessionRequest{
		CustomerID:  customerID,
		Amount:      draft.Totals.Total,
		Description: "International Market Order",
		SuccessURL:  c.successURL,
		CancelURL:   c.cancelURL,
	})
	if err != nil {
		return "", errors.Wrap(err, "create payment session")
	}

	return session.URL, nil
}

// CompleteOnlinePayment runs phase 2 of the gateway flow, invoked by the
// provider's completion callback. The transaction insert is the idempotency
// barrier: its unique (provider, payment intent) constraint collapses
// duplicate and concurrent callbacks into a single effect before any order
// is created. Internal failures are returned for logging only; the caller
// acknowledges the callback regardless.
func (c *Coordinator) CompleteOnlinePayment(ctx context.Context, ev payment.CompletedPayment) error {
	lg := zctx.From(ctx)

	if ev.PaymentIntentID == "" || ev.CustomerID == 0 {
		return nil
	}

	// Fast path: the provider retried an already-processed event.
	if _, err := c.txs.FindByPaymentIntent(ctx, ev.Provider, ev.PaymentIntentID); err == nil {
		return nil
	} else if !errors.Is(err, payment.ErrNotFound) {
		return errors.Wrap(err, "check payment intent")
	}

	draft, err := c.drafts.Get(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, ErrDraftNotFound) {
			// Draft already consumed or abandoned; nothing to do.
			return nil
		}
		return errors.Wrap(err, "load draft")
	}
	if draft.ShippingAddress == nil {
		lg.Warn("payment completed without shipping address on draft",
			zap.Int64("customer_id", ev.CustomerID))
		return nil
	}

	// Idempotency barrier. Payment is already captured, so the transaction
	// is born succeeded; the order id is attached after materialization.
	tx := &payment.Transaction{
		ID:                      uuid.New().String(),
		CustomerID:              ev.CustomerID,
		PaymentMethod:           order.PaymentOnline,
		Status:                  payment.StatusSucceeded,
		Amount:                  draft.Totals.Total,
		Provider:                ev.Provider,
		ProviderPaymentIntentID: ev.PaymentIntentID,
		CreatedAt:               c.now().UTC(),
	}
	if err := c.txs.Create(ctx, tx); err != nil {
		if errors.Is(err, payment.ErrDuplicateIntent) {
			// Lost a race with a concurrent duplicate callback.
			return nil
		}
		return errors.Wrap(err, "create transaction log")
	}

	// Money already moved; a failed coupon mark must not block the order.
	if draft.CouponCode != "" {
		if err := c.coupons.Redeem(ctx, draft.CouponCode, ev.CustomerID); err != nil {
			lg.Warn("coupon redemption failed after payment capture",
				zap.String("coupon_code", draft.CouponCode),
				zap.Int64("customer_id", ev.CustomerID),
				zap.Error(err),
			)
		}
	}

	o, err := c.materializer.Materialize(ctx, order.MaterializeInput{
		CustomerID:      ev.CustomerID,
		Items:           draft.Items,
		Pricing:         draft.Totals.Pricing(),
		CouponCode:      draft.CouponCode,
		PaymentMethod:   order.PaymentOnline,
		ShippingAddress: *draft.ShippingAddress,
		Notes:           draft.Notes,
	})
	if err != nil {
		if markErr := c.txs.MarkFailed(ctx, tx.ID); markErr != nil {
			lg.Error("mark transaction failed", zap.String("transaction_id", tx.ID), zap.Error(markErr))
		}
		return errors.Wrap(err, "materialize order")
	}

	if err := c.txs.AttachOrder(ctx, tx.ID, o.ID); err != nil {
		lg.Error("attach order to transaction",
			zap.String("transaction_id", tx.ID), zap.Int64("order_id", o.ID), zap.Error(err))
	}
	if err := c.orders.AttachTransaction(ctx, o.ID, tx.ID); err != nil {
		lg.Error("attach transaction to order",
			zap.String("transaction_id", tx.ID), zap.Int64("order_id", o.ID), zap.Error(err))
	}

	c.cleanup(ctx, ev.CustomerID)

	return nil
}

// SaveDraft stores a freshly built draft for the customer, replacing any
// previous one.
func (c *Coordinator) SaveDraft(ctx context.Context, d *Draft) error {
	d.UpdatedAt = c.now().UTC()
	return c.drafts.Upsert(ctx, d)
}

// GetDraft returns the customer's active draft, or ErrDraftNotFound.
func (c *Coordinator) GetDraft(ctx context.Context, customerID int64) (*Draft, error) {
	return c.drafts.Get(ctx, customerID)
}

// AbandonDraft removes the customer's draft, e.g. after an explicit cart change.
func (c *Coordinator) AbandonDraft(ctx context.Context, customerID int64) error {
	return c.drafts.Delete(ctx, customerID)
}

// cleanup empties the cart and deletes the draft after a successful
// materialization. Both are best-effort: the order already exists.
func (c *Coordinator) cleanup(ctx context.Context, customerID int64) {
	lg := zctx.From(ctx)
	if err := c.carts.Empty(ctx, customerID); err != nil {
		lg.Warn("empty cart", zap.Int64("customer_id", customerID), zap.Error(err))
	}
	if err := c.drafts.Delete(ctx, customerID); err != nil {
		lg.Warn("delete draft", zap.Int64("customer_id", customerID), zap.Error(err))
	}
}
