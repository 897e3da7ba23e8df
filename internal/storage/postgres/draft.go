package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/int-market-project/international-market/internal/domain/checkout"
)

const (
	upsertDraftSQL = `INSERT INTO checkout_drafts (
		customer_id, items, subtotal, discount_amount, discounted_subtotal,
		tax, shipping_fee, total, coupon_code, shipping_address, notes, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (customer_id) DO UPDATE SET
		items = EXCLUDED.items,
		subtotal = EXCLUDED.subtotal,
		discount_amount = EXCLUDED.discount_amount,
		discounted_subtotal = EXCLUDED.discounted_subtotal,
		tax = EXCLUDED.tax,
		shipping_fee = EXCLUDED.shipping_fee,
		total = EXCLUDED.total,
		coupon_code = EXCLUDED.coupon_code,
		shipping_address = EXCLUDED.shipping_address,
		notes = EXCLUDED.notes,
		updated_at = EXCLUDED.updated_at`

	getDraftSQL = `SELECT customer_id, items, subtotal, discount_amount,
		discounted_subtotal, tax, shipping_fee, total, coupon_code,
		shipping_address, notes, updated_at
	FROM checkout_drafts WHERE customer_id = $1`

	deleteDraftSQL = `DELETE FROM checkout_drafts WHERE customer_id = $1`
)

var _ checkout.DraftRepository = (*DraftRepository)(nil)

// DraftRepository persists the single active checkout draft per customer.
type DraftRepository struct {
	pool *pgxpool.Pool
}

// NewDraftRepository returns a DraftRepository that uses the given pool.
func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

// Upsert replaces or creates the customer's draft.
func (r *DraftRepository) Upsert(ctx context.Context, d *checkout.Draft) error {
	_, err := r.pool.Exec(ctx, upsertDraftSQL,
		d.CustomerID, d.Items,
		d.Totals.Subtotal, d.Totals.DiscountAmount, d.Totals.DiscountedSubtotal,
		d.Totals.Tax, d.Totals.ShippingFee, d.Totals.Total,
		d.CouponCode, d.ShippingAddress, d.Notes, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting draft for customer %d: %w", d.CustomerID, err)
	}
	return nil
}

// Get returns the customer's draft, or checkout.ErrDraftNotFound.
func (r *DraftRepository) Get(ctx context.Context, customerID int64) (*checkout.Draft, error) {
	var d checkout.Draft
	err := r.pool.QueryRow(ctx, getDraftSQL, customerID).Scan(
		&d.CustomerID, &d.Items,
		&d.Totals.Subtotal, &d.Totals.DiscountAmount, &d.Totals.DiscountedSubtotal,
		&d.Totals.Tax, &d.Totals.ShippingFee, &d.Totals.Total,
		&d.CouponCode, &d.ShippingAddress, &d.Notes, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrDraftNotFound
		}
		return nil, fmt.Errorf("getting draft for customer %d: %w", customerID, err)
	}
	return &d, nil
}

// Delete removes the customer's draft. Deleting a missing draft is not an
// error; the draft is consumed concurrently by order materialization.
func (r *DraftRepository) Delete(ctx context.Context, customerID int64) error {
	_, err := r.pool.Exec(ctx, deleteDraftSQL, customerID)
	if err != nil {
		return fmt.Errorf("deleting draft for customer %d: %w", customerID, err)
	}
	return nil
}
