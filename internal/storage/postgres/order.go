package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/int-market-project/international-market/internal/domain/order"
)

const (
	nextOrderIDSQL = `SELECT nextval('order_id_seq')`

	orderColumns = `id, customer_id, order_status, items,
		subtotal, discount_amount, discounted_subtotal, tax, shipping_fee, total,
		coupon_code, payment_method, payment_transaction_id, notes,
		shipping_address, ordered_at, confirmed_at, packed_at,
		out_for_delivery_at, delivered_at, canceled_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE id = $1 AND customer_id = $2`

	latestOrderIDSQL = `SELECT id FROM orders
		WHERE customer_id = $1 ORDER BY ordered_at DESC, id DESC LIMIT 1`

	attachOrderTransactionSQL = `UPDATE orders
		SET payment_transaction_id = $2 WHERE id = $1`

	applyTransitionSQL = `UPDATE orders SET
		order_status = $2, notes = $3,
		confirmed_at = $4, packed_at = $5, out_for_delivery_at = $6,
		delivered_at = $7, canceled_at = $8
		WHERE id = $1`

	listOpenOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE order_status NOT IN ('delivered', 'canceled')
		ORDER BY ordered_at ASC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NextID allocates the next order id from the dedicated sequence.
func (r *OrderRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, nextOrderIDSQL).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocating order id: %w", err)
	}
	return id, nil
}

// Create inserts a fully materialized order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var txID *string
	if o.TransactionID != "" {
		txID = &o.TransactionID
	}
	_, err := r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, string(o.Status), o.Items,
		o.Pricing.Subtotal, o.Pricing.DiscountAmount, o.Pricing.DiscountedSubtotal,
		o.Pricing.Tax, o.Pricing.ShippingFee, o.Pricing.Total,
		o.CouponCode, string(o.PaymentMethod), txID, o.Notes,
		o.ShippingAddress, o.OrderedAt,
		o.ConfirmedAt, o.PackedAt, o.OutForDeliveryAt, o.DeliveredAt, o.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %d: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with the given id, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.get(ctx, getOrderByIDSQL, id)
}

// GetForCustomer returns the order only when it belongs to customerID, so a
// customer cannot read another customer's order by guessing ids.
func (r *OrderRepository) GetForCustomer(ctx context.Context, id, customerID int64) (*order.Order, error) {
	return r.get(ctx, getOrderForCustomerSQL, id, customerID)
}

func (r *OrderRepository) get(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return &o, nil
}

// LatestIDForCustomer returns the id of the customer's most recent order, or
// order.ErrNotFound when they have none.
func (r *OrderRepository) LatestIDForCustomer(ctx context.Context, customerID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, latestOrderIDSQL, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrNotFound
		}
		return 0, fmt.Errorf("finding latest order for customer %d: %w", customerID, err)
	}
	return id, nil
}

// AttachTransaction links a payment transaction to the order.
func (r *OrderRepository) AttachTransaction(ctx context.Context, orderID int64, transactionID string) error {
	tag, err := r.pool.Exec(ctx, attachOrderTransactionSQL, orderID, transactionID)
	if err != nil {
		return fmt.Errorf("attaching transaction to order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ApplyTransition persists the status, timestamps and notes of o.
func (r *OrderRepository) ApplyTransition(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, applyTransitionSQL,
		o.ID, string(o.Status), o.Notes,
		o.ConfirmedAt, o.PackedAt, o.OutForDeliveryAt, o.DeliveredAt, o.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("applying transition on order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListOpen returns all orders that have not reached a terminal status,
// oldest first.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOpenOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		method string
		txID   *string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.Items,
		&o.Pricing.Subtotal, &o.Pricing.DiscountAmount, &o.Pricing.DiscountedSubtotal,
		&o.Pricing.Tax, &o.Pricing.ShippingFee, &o.Pricing.Total,
		&o.CouponCode, &method, &txID, &o.Notes,
		&o.ShippingAddress, &o.OrderedAt,
		&o.ConfirmedAt, &o.PackedAt, &o.OutForDeliveryAt, &o.DeliveredAt, &o.CanceledAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	if txID != nil {
		o.TransactionID = *txID
	}
	return o, err
}
