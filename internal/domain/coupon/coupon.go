package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountAmount takes a fixed dollar amount off the subtotal.
	DiscountAmount DiscountType = "amount"
	// DiscountPercent takes a percentage off the subtotal.
	DiscountPercent DiscountType = "percent"
)

// Audience restricts who may use a coupon.
type Audience string

const (
	// AudienceAll makes the coupon available to every customer.
	AudienceAll Audience = "all"
	// AudienceCustomers limits the coupon to EligibleCustomerIDs.
	AudienceCustomers Audience = "customers"
)

var (
	// ErrEmptyCode is returned when no code was entered.
	ErrEmptyCode = errors.New("please enter a coupon code")
	// ErrNotFound is returned when the code does not match any coupon.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrNotStarted is returned before the coupon's validity window opens.
	ErrNotStarted = errors.New("this coupon is not active yet")
	// ErrExpired is returned after the coupon's validity window closes.
	ErrExpired = errors.New("this coupon has expired")
	// ErrNotEligible is returned when the customer is outside the coupon's audience.
	ErrNotEligible = errors.New("this coupon is not available for your account")
	// ErrUsageLimitReached is returned when the global usage cap is exhausted.
	ErrUsageLimitReached = errors.New("this coupon has reached its maximum number of uses")
	// ErrAlreadyUsed is returned when the customer has redeemed the coupon before.
	ErrAlreadyUsed = errors.New("you have already used this coupon")
	// ErrMisconfigured indicates an operator error in the stored rule, not a
	// user input error.
	ErrMisconfigured = errors.New("this coupon is configured incorrectly")
	// ErrCodeTaken is returned when creating a coupon whose code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// MinSubtotalError is returned when the order subtotal is below the coupon's
// minimum; it carries the minimum so the message can state it.
type MinSubtotalError struct {
	Min decimal.Decimal
}

func (e *MinSubtotalError) Error() string {
	return "minimum order subtotal is $" + e.Min.StringFixed(2) + " for this coupon"
}

// Coupon is a stored discount rule. Codes are uppercased and unique.
type Coupon struct {
	Code        string
	Title       string
	Description string

	DiscountType  DiscountType
	DiscountValue decimal.Decimal

	MinOrderSubtotal decimal.Decimal

	Audience            Audience
	EligibleCustomerIDs []int64

	// MaxUsesTotal of 0 means unlimited.
	MaxUsesTotal int
	UsesTotal    int

	// CustomerIDsWhoUsed enforces one redemption per customer; an id appears
	// at most once.
	CustomerIDsWhoUsed []int64

	StartsAt *time.Time
	EndsAt   *time.Time

	CreatedAt time.Time
}

// UsedBy reports whether customerID has already redeemed the coupon.
func (c *Coupon) UsedBy(customerID int64) bool {
	for _, id := range c.CustomerIDsWhoUsed {
		if id == customerID {
			return true
		}
	}
	return false
}

// EligibleFor reports whether customerID falls within the coupon's audience.
func (c *Coupon) EligibleFor(customerID int64) bool {
	if c.Audience != AudienceCustomers {
		return true
	}
	for _, id := range c.EligibleCustomerIDs {
		if id == customerID {
			return true
		}
	}
	return false
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Redeem appends customerID to the used set and increments the usage
	// counter in one conditional write: the update applies only if the
	// customer has not used the coupon and the global cap is not exhausted
	// at write time. Returns ErrAlreadyUsed, ErrUsageLimitReached or
	// ErrNotFound when the condition fails.
	Redeem(ctx context.Context, code string, customerID int64) error

	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]Coupon, error)
}
