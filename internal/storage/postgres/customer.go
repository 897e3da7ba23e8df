package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/int-market-project/international-market/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, email, first_name, last_name
		FROM customers WHERE id = $1`

	emptyCartSQL = `DELETE FROM cart_items WHERE customer_id = $1`
)

var (
	_ customer.Repository  = (*CustomerRepository)(nil)
	_ customer.CartService = (*CustomerRepository)(nil)
)

// CustomerRepository implements customer.Repository and the cart collaborator
// backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns the customer with the given id, or customer.ErrNotFound.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}

// Empty removes every cart line of the customer. An already-empty cart is
// not an error.
func (r *CustomerRepository) Empty(ctx context.Context, customerID int64) error {
	if _, err := r.pool.Exec(ctx, emptyCartSQL, customerID); err != nil {
		return fmt.Errorf("emptying cart for customer %d: %w", customerID, err)
	}
	return nil
}
