// Package invoice defines order and recurring invoices.
package invoice

import (
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Open reports whether an invoice in status s still expects payment.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOverdue
}

// CanTransition reports whether from → to is an allowed status change.
// Pending may become paid, overdue or cancelled; overdue may still be paid
// late or cancelled. Paid and cancelled are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusOverdue || to == StatusCancelled
	case StatusOverdue:
		return to == StatusPaid || to == StatusCancelled
	default:
		return false
	}
}

// Invoice is either the originating invoice of an order (OrderID set) or a
// recurring invoice generated for a service (OrderID nil, ServiceID set).
// PaidAt is set exactly when Status is paid.
type Invoice struct {
	types.Entity
	ID          id.InvoiceID  `json:"id"`
	CustomerID  id.CustomerID `json:"customer_id"`
	OrderID     id.OrderID    `json:"order_id,omitempty"`
	ServiceID   id.ServiceID  `json:"service_id,omitempty"`
	Number      string        `json:"number"`
	Currency    string        `json:"currency"`
	Amount      types.Money   `json:"amount"`
	TaxAmount   types.Money   `json:"tax_amount"`
	Total       types.Money   `json:"total"`
	Status      Status        `json:"status"`
	DueDate     time.Time     `json:"due_date"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	LineItems   []LineItem    `json:"line_items"`
	IsRecurring bool          `json:"is_recurring"`
}

type LineItem struct {
	Description string      `json:"description"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   types.Money `json:"unit_price"`
	Total       types.Money `json:"total"`
}

// ListOpts filters invoice listings. Zero values match everything.
type ListOpts struct {
	Status     Status
	CustomerID id.CustomerID
	OrderID    id.OrderID
	ServiceID  id.ServiceID
	Recurring  *bool
	Limit      int
	Offset     int
}
