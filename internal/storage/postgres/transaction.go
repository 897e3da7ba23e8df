package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
)

const (
	transactionColumns = `id, order_id, customer_id, payment_method, status,
		amount, provider, provider_payment_intent_id, created_at`

	insertTransactionSQL = `INSERT INTO transaction_logs (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	findTransactionByIntentSQL = `SELECT ` + transactionColumns + `
		FROM transaction_logs
		WHERE provider = $1 AND provider_payment_intent_id = $2`

	attachTransactionOrderSQL = `UPDATE transaction_logs
		SET order_id = $2 WHERE id = $1`

	setTransactionStatusSQL = `UPDATE transaction_logs
		SET status = $2 WHERE id = $1`

	listRecentTransactionsSQL = `SELECT ` + transactionColumns + `
		FROM transaction_logs ORDER BY created_at DESC LIMIT $1`

	listCustomerTransactionsSQL = `SELECT ` + transactionColumns + `
		FROM transaction_logs
		WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`
)

// idx name from the schema; the partial unique index over
// (provider, provider_payment_intent_id) is the dedup barrier for
// asynchronous payment completions.
const transactionIntentConstraint = "ux_transaction_logs_provider_intent"

var _ payment.Repository = (*TransactionRepository)(nil)

// TransactionRepository implements payment.Repository backed by PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository returns a TransactionRepository that uses the
// given pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create persists a new transaction log entry. A duplicate provider payment
// intent fails with payment.ErrDuplicateIntent even under concurrent inserts.
func (r *TransactionRepository) Create(ctx context.Context, t *payment.Transaction) error {
	var provider, intentID *string
	if t.Provider != "" {
		provider = &t.Provider
	}
	if t.ProviderPaymentIntentID != "" {
		intentID = &t.ProviderPaymentIntentID
	}
	_, err := r.pool.Exec(ctx, insertTransactionSQL,
		t.ID, t.OrderID, t.CustomerID, string(t.PaymentMethod), string(t.Status),
		t.Amount, provider, intentID, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, transactionIntentConstraint) {
			return payment.ErrDuplicateIntent
		}
		return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
	}
	return nil
}

// FindByPaymentIntent looks up the transaction recorded for a provider
// payment intent, or returns payment.ErrNotFound.
func (r *TransactionRepository) FindByPaymentIntent(ctx context.Context, provider, paymentIntentID string) (*payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, findTransactionByIntentSQL, provider, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("finding transaction by intent: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("finding transaction by intent: %w", err)
	}
	return &t, nil
}

// AttachOrder links the transaction to its materialized order.
func (r *TransactionRepository) AttachOrder(ctx context.Context, transactionID string, orderID int64) error {
	return r.update(ctx, attachTransactionOrderSQL, transactionID, orderID)
}

// MarkSucceeded moves the transaction to the succeeded status.
func (r *TransactionRepository) MarkSucceeded(ctx context.Context, transactionID string) error {
	return r.update(ctx, setTransactionStatusSQL, transactionID, string(payment.StatusSucceeded))
}

// MarkFailed moves the transaction to the failed status.
func (r *TransactionRepository) MarkFailed(ctx context.Context, transactionID string) error {
	return r.update(ctx, setTransactionStatusSQL, transactionID, string(payment.StatusFailed))
}

func (r *TransactionRepository) update(ctx context.Context, sql, transactionID string, arg any) error {
	tag, err := r.pool.Exec(ctx, sql, transactionID, arg)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// ListRecent returns the newest transactions across all customers.
func (r *TransactionRepository) ListRecent(ctx context.Context, limit int) ([]payment.Transaction, error) {
	return r.list(ctx, listRecentTransactionsSQL, limit)
}

// ListByCustomer returns the customer's newest transactions.
func (r *TransactionRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]payment.Transaction, error) {
	return r.list(ctx, listCustomerTransactionsSQL, customerID, limit)
}

func (r *TransactionRepository) list(ctx context.Context, sql string, args ...any) ([]payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(row pgx.CollectableRow) (payment.Transaction, error) {
	var (
		t        payment.Transaction
		method   string
		status   string
		provider *string
		intentID *string
	)
	err := row.Scan(
		&t.ID, &t.OrderID, &t.CustomerID, &method, &status,
		&t.Amount, &provider, &intentID, &t.CreatedAt,
	)
	t.PaymentMethod = order.PaymentMethod(method)
	t.Status = payment.Status(status)
	if provider != nil {
		t.Provider = *provider
	}
	if intentID != nil {
		t.ProviderPaymentIntentID = *intentID
	}
	return t, err
}
