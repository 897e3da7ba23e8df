package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/order"
)

// DefaultTaxRate is the fixed tax rate applied to the discounted subtotal
// when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.06")

// Totals is the full monetary breakdown of a checkout. All fields are rounded
// to 2 decimals.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	DiscountedSubtotal decimal.Decimal `json:"discounted_subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	ShippingFee        decimal.Decimal `json:"shipping_fee"`
	Total              decimal.Decimal `json:"total"`
}

// Pricing converts the totals into the order pricing snapshot.
func (t Totals) Pricing() order.Pricing {
	return order.Pricing{
		Subtotal:           t.Subtotal,
		DiscountAmount:     t.DiscountAmount,
		DiscountedSubtotal: t.DiscountedSubtotal,
		Tax:                t.Tax,
		ShippingFee:        t.ShippingFee,
		Total:              t.Total,
	}
}

// Calculator computes checkout totals with a fixed tax rate. It is a pure
// function over its inputs: no I/O, same inputs always yield the same output.
type Calculator struct {
	TaxRate decimal.Decimal
}

// NewCalculator returns a Calculator with the given tax rate, falling back to
// DefaultTaxRate when rate is zero.
func NewCalculator(rate decimal.Decimal) Calculator {
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	return Calculator{TaxRate: rate}
}

// Compute clamps its inputs (subtotal, discount and shipping non-negative,
// discount at most the subtotal), derives tax from the discounted subtotal,
// and rounds every output to 2 decimals at the boundary only, so rounding
// error never compounds through intermediate steps.
func (c Calculator) Compute(subtotal, discountAmount, shippingFee decimal.Decimal) Totals {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	if discountAmount.IsNegative() {
		discountAmount = decimal.Zero
	}
	if shippingFee.IsNegative() {
		shippingFee = decimal.Zero
	}
	if discountAmount.GreaterThan(subtotal) {
		discountAmount = subtotal
	}

	discounted := subtotal.Sub(discountAmount)
	tax := discounted.Mul(c.TaxRate)
	total := discounted.Add(tax).Add(shippingFee)

	return Totals{
		Subtotal:           subtotal.Round(2),
		DiscountAmount:     discountAmount.Round(2),
		DiscountedSubtotal: discounted.Round(2),
		Tax:                tax.Round(2),
		ShippingFee:        shippingFee.Round(2),
		Total:              total.Round(2),
	}
}
