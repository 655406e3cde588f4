// Package order defines customer orders and their frozen line items.
package order

import (
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Order is created together with its originating invoice and never
// re-created. Totals are frozen at creation.
type Order struct {
	types.Entity
	ID         id.OrderID    `json:"id"`
	CustomerID id.CustomerID `json:"customer_id"`
	Number     string        `json:"number"`
	Items      []Item        `json:"items"`
	Currency   string        `json:"currency"`
	Subtotal   types.Money   `json:"subtotal"`
	TaxAmount  types.Money   `json:"tax_amount"`
	Total      types.Money   `json:"total"`
	Status     Status        `json:"status"`
	PaidAt     *time.Time    `json:"paid_at,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// Item is a snapshot of a service type at order time.
type Item struct {
	ServiceTypeID id.ServiceTypeID `json:"service_type_id"`
	Name          string           `json:"name"`
	Quantity      int64            `json:"quantity"`
	UnitPrice     types.Money      `json:"unit_price"`
	LineTotal     types.Money      `json:"line_total"`
	DomainName    string           `json:"domain_name,omitempty"`
}

// Description is the invoice line text for the item.
func (i Item) Description() string {
	if i.DomainName != "" {
		return i.Name + " - " + i.DomainName
	}
	return i.Name
}

// ItemInput is a requested order line before pricing.
type ItemInput struct {
	ServiceTypeID id.ServiceTypeID `json:"service_type_id"`
	Quantity      int64            `json:"quantity"`
	DomainName    string           `json:"domain_name,omitempty"`
}

// ListOpts filters order listings.
type ListOpts struct {
	CustomerID id.CustomerID
	Status     Status
	Limit      int
	Offset     int
}
