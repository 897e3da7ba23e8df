package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims surrounding whitespace and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Summary is the display slice of a coupon returned on successful validation.
type Summary struct {
	Code             string          `json:"code"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	DiscountType     DiscountType    `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	MinOrderSubtotal decimal.Decimal `json:"min_order_subtotal"`
	Audience         Audience        `json:"audience"`
}

// Validation is the successful result of Engine.Validate.
type Validation struct {
	DiscountAmount decimal.Decimal
	Summary        Summary
}

// Engine validates coupon codes against a customer and subtotal. Validate
// performs no mutation and is safe to call on every cart render; redemption
// happens separately through Repository.Redeem at commit time.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate checks code against customerID and subtotal, short-circuiting on
// the first failed rule, and computes the discount amount on success. The
// returned amount is rounded to 2 decimals and clamped to the subtotal so the
// discounted subtotal can never go negative.
func (e *Engine) Validate(ctx context.Context, code string, customerID int64, subtotal decimal.Decimal) (*Validation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	c, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := e.now()
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return nil, ErrNotStarted
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return nil, ErrExpired
	}

	if subtotal.LessThan(c.MinOrderSubtotal) {
		return nil, &MinSubtotalError{Min: c.MinOrderSubtotal}
	}

	if !c.EligibleFor(customerID) {
		return nil, ErrNotEligible
	}

	if c.MaxUsesTotal > 0 && c.UsesTotal >= c.MaxUsesTotal {
		return nil, ErrUsageLimitReached
	}

	if c.UsedBy(customerID) {
		return nil, ErrAlreadyUsed
	}

	if !c.DiscountValue.IsPositive() {
		return nil, ErrMisconfigured
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountAmount:
		amount = c.DiscountValue
	case DiscountPercent:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
	default:
		return nil, ErrMisconfigured
	}

	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}

	return &Validation{
		DiscountAmount: amount.Round(2),
		Summary: Summary{
			Code:             c.Code,
			Title:            c.Title,
			Description:      c.Description,
			DiscountType:     c.DiscountType,
			DiscountValue:    c.DiscountValue,
			MinOrderSubtotal: c.MinOrderSubtotal,
			Audience:         c.Audience,
		},
	}, nil
}

// Redeem marks the coupon as used by customerID. The repository re-checks the
// one-time-use and global-cap conditions at write time, which closes the race
// between validation and commit: two concurrent checkouts with the same
// single-use coupon cannot both succeed.
func (e *Engine) Redeem(ctx context.Context, code string, customerID int64) error {
	code = NormalizeCode(code)
	if code == "" {
		return ErrEmptyCode
	}
	return e.repo.Redeem(ctx, code, customerID)
}

// UserFacing reports whether err is a coupon rejection meant for the customer,
// as opposed to an infrastructure failure.
func UserFacing(err error) bool {
	var minErr *MinSubtotalError
	switch {
	case errors.Is(err, ErrEmptyCode),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrUsageLimitReached),
		errors.Is(err, ErrAlreadyUsed),
		errors.Is(err, ErrMisconfigured),
		errors.As(err, &minErr):
		return true
	}
	return false
}
