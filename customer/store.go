package customer

import (
	"context"

	"github.com/xraph/fulfill/id"
)

// Store persists customers.
type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*Customer, error)
	CountCustomers(ctx context.Context) (int64, error)
}
