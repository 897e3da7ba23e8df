package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is the slice of the customer record the core needs for
// notification. Authentication and account management live elsewhere.
type Customer struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// FullName joins the first and last name, tolerating either being empty.
func (c *Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Repository defines read operations over customers.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
}

// CartService is the consumed cart collaborator: the checkout flows empty the
// customer's cart once an order is materialized.
type CartService interface {
	Empty(ctx context.Context, customerID int64) error
}
