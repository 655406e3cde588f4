package invoice

import (
	"context"
	"time"

	"github.com/xraph/fulfill/id"
)

// Store persists invoices. Invoices are created through the order and
// service stores so they always commit together with their origin.
type Store interface {
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error
	CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) error
	// MarkOverdue moves every pending invoice due before now to overdue
	// and returns how many rows changed.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
