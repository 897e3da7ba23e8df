package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/order"
)

// Status is the lifecycle state of a payment transaction. It evolves
// independently of the order status: a COD transaction stays pending until
// the order is delivered.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateIntent is returned by Create when a transaction already
	// exists for the same (provider, provider_payment_intent_id) pair. The
	// storage layer enforces this with a unique constraint, so the check
	// holds even for two concurrent inserts.
	ErrDuplicateIntent = errors.New("duplicate provider payment intent")
)

// Transaction is a payment log entry, created 1:1 with an order but living
// its own lifecycle afterwards.
type Transaction struct {
	ID         string
	OrderID    int64
	CustomerID int64

	PaymentMethod order.PaymentMethod
	Status        Status
	Amount        decimal.Decimal

	// Provider is the external gateway name ("stripe"), empty for COD.
	Provider string
	// ProviderPaymentIntentID is the idempotency key for asynchronous
	// completions; empty for COD.
	ProviderPaymentIntentID string

	CreatedAt time.Time
}

// Repository defines persistence operations for transaction logs.
type Repository interface {
	// Create persists a new transaction. When the transaction carries a
	// provider payment intent, a concurrent duplicate insert fails with
	// ErrDuplicateIntent.
	Create(ctx context.Context, t *Transaction) error
	FindByPaymentIntent(ctx context.Context, provider, paymentIntentID string) (*Transaction, error)
	AttachOrder(ctx context.Context, transactionID string, orderID int64) error
	MarkSucceeded(ctx context.Context, transactionID string) error
	MarkFailed(ctx context.Context, transactionID string) error
	ListRecent(ctx context.Context, limit int) ([]Transaction, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Transaction, error)
}
