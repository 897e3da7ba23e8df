package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrBadSignature is returned by ParseEvent when the callback payload fails
// the authenticity check. This is the only webhook error that should be
// rejected back to the provider; everything else is acknowledged so the
// provider stops retrying.
var ErrBadSignature = errors.New("invalid webhook signature")

// SessionRequest describes a hosted payment session to create at the external
// provider.
type SessionRequest struct {
	CustomerID  int64
	Amount      decimal.Decimal
	Description string
	SuccessURL  string
	CancelURL   string
}

// Session is a created provider session the customer is redirected to.
type Session struct {
	ID  string
	URL string
}

// CompletedPayment is the normalized form of a provider completion callback.
type CompletedPayment struct {
	Provider        string
	PaymentIntentID string
	CustomerID      int64
}

// Provider abstracts the external payment gateway: hosted session creation at
// request time and signed completion callbacks afterwards.
type Provider interface {
	Name() string
	// CreateSession opens a hosted checkout session for the given amount,
	// embedding the customer id in session metadata so the completion
	// callback can recover it.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseEvent verifies the callback signature and extracts the completed
	// payment, if any. A nil CompletedPayment with nil error means the event
	// is authentic but not a completion (ignore and acknowledge).
	ParseEvent(payload []byte, signatureHeader string) (*CompletedPayment, error)
}
