package order

import (
	"context"
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
)

// Store persists orders.
//
// CreateOrder writes the order and its originating invoice in one
// transaction. SettleOrder flips a pending order to paid and settles its
// open invoices in one transaction; it reports false, and writes nothing,
// when the order was not pending.
type Store interface {
	CreateOrder(ctx context.Context, o *Order, inv *invoice.Invoice) error
	GetOrder(ctx context.Context, orderID id.OrderID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrders(ctx context.Context, opts ListOpts) ([]*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID id.OrderID, from []Status, to Status, at time.Time) error
	SettleOrder(ctx context.Context, orderID id.OrderID, paidAt time.Time) (bool, error)
}
