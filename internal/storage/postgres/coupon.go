package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/coupon"
)

const (
	couponColumns = `code, title, description, discount_type, discount_value,
		min_order_subtotal, audience, eligible_customer_ids,
		max_uses_total, uses_total, customer_ids_who_used,
		starts_at, ends_at, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1)`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons ORDER BY created_at DESC`

	// Conditional redeem: the predicates re-check the one-time-per-customer
	// rule and the global cap at write time, closing the race between
	// validation and commit.
	redeemCouponSQL = `UPDATE coupons
		SET uses_total = uses_total + 1,
		    customer_ids_who_used = array_append(customer_ids_who_used, $2)
		WHERE code = $1
		  AND NOT ($2 = ANY(customer_ids_who_used))
		  AND (max_uses_total = 0 OR uses_total < max_uses_total)`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	updateCouponSQL = `UPDATE coupons SET
		title = $2, description = $3, discount_type = $4, discount_value = $5,
		min_order_subtotal = $6, audience = $7, eligible_customer_ids = $8,
		max_uses_total = $9, starts_at = $10, ends_at = $11
		WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Redeem appends the customer to the used set and bumps the usage counter in
// a single conditional UPDATE. A zero row count means a precondition failed
// at write time; a follow-up read classifies which one.
func (r *CouponRepository) Redeem(ctx context.Context, code string, customerID int64) error {
	tag, err := r.pool.Exec(ctx, redeemCouponSQL, code, customerID)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	c, err := r.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if c.UsedBy(customerID) {
		return coupon.ErrAlreadyUsed
	}
	if c.MaxUsesTotal > 0 && c.UsesTotal >= c.MaxUsesTotal {
		return coupon.ErrUsageLimitReached
	}
	return fmt.Errorf("redeeming coupon %q: no rows updated", code)
}

// Create inserts a new coupon. Returns coupon.ErrCodeTaken when the code
// already exists.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.Code, c.Title, c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinOrderSubtotal, string(c.Audience), c.EligibleCustomerIDs,
		c.MaxUsesTotal, c.UsesTotal, c.CustomerIDsWhoUsed,
		c.StartsAt, c.EndsAt, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites the admin-editable fields of a coupon. Usage counters and
// the used set are only ever touched by Redeem.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, c.Title, c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinOrderSubtotal, string(c.Audience), c.EligibleCustomerIDs,
		c.MaxUsesTotal, c.StartsAt, c.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon by code.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		discountType  string
		audience      string
		discountValue decimal.Decimal
		minSubtotal   decimal.Decimal
		startsAt      *time.Time
		endsAt        *time.Time
	)
	err := row.Scan(
		&c.Code, &c.Title, &c.Description, &discountType, &discountValue,
		&minSubtotal, &audience, &c.EligibleCustomerIDs,
		&c.MaxUsesTotal, &c.UsesTotal, &c.CustomerIDsWhoUsed,
		&startsAt, &endsAt, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.Audience = coupon.Audience(audience)
	c.DiscountValue = discountValue
	c.MinOrderSubtotal = minSubtotal
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	return c, err
}
