package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/product"
)

// ErrEmptyItems is returned when a draft is built with no line items.
var ErrEmptyItems = errors.New("order must contain at least one item")

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %d", e.Quantity, e.ProductID)
}

// ProductNotFoundError indicates a line item referencing an unknown product.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Builder prices line items from the catalog, applies an optional coupon
// (read-only validation, never redemption) and computes the totals of a new
// checkout draft. Client-submitted prices are never trusted.
type Builder struct {
	products product.Repository
	coupons  *coupon.Engine
	settings Settings
	calc     Calculator
	now      func() time.Time
}

// NewBuilder wires a Builder over the catalog, coupon engine and settings.
func NewBuilder(products product.Repository, coupons *coupon.Engine, settings Settings, calc Calculator) *Builder {
	return &Builder{
		products: products,
		coupons:  coupons,
		settings: settings,
		calc:     calc,
		now:      time.Now,
	}
}

// Build produces an unsaved draft for the given items and optional coupon
// code. The returned coupon summary is nil when no coupon was applied.
// Coupon rejections come back as the coupon package's user-facing errors.
func (b *Builder) Build(ctx context.Context, customerID int64, items []order.Item, couponCode string) (*Draft, *coupon.Summary, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		ids = append(ids, it.ProductID)
	}

	products, err := b.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load products")
	}
	priceByID := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		priceByID[p.ID] = p.Price
	}

	subtotal := decimal.Zero
	for _, it := range items {
		price, ok := priceByID[it.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	var (
		discount decimal.Decimal
		summary  *coupon.Summary
	)
	couponCode = coupon.NormalizeCode(couponCode)
	if couponCode != "" {
		v, err := b.coupons.Validate(ctx, couponCode, customerID, subtotal)
		if err != nil {
			return nil, nil, err
		}
		discount = v.DiscountAmount
		summary = &v.Summary
	}

	shippingFee, err := b.settings.ShippingFee(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load shipping fee")
	}

	d := &Draft{
		CustomerID: customerID,
		Items:      items,
		Totals:     b.calc.Compute(subtotal, discount, shippingFee),
		CouponCode: couponCode,
		UpdatedAt:  b.now().UTC(),
	}
	return d, summary, nil
}
