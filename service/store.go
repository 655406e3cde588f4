package service

import (
	"context"
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
)

// Store persists services.
//
// BillService inserts a recurring invoice and advances the service's next
// billing date from expectedNext to newNext in one transaction. When the
// stored date no longer equals expectedNext another runner has billed the
// period; nothing is written and fulfill.ErrBillingClaimLost is returned.
type Store interface {
	CreateService(ctx context.Context, svc *Service) error
	GetService(ctx context.Context, svcID id.ServiceID) (*Service, error)
	ListServices(ctx context.Context, opts ListOpts) ([]*Service, error)
	ListDueServices(ctx context.Context, now time.Time) ([]*Service, error)
	BillService(ctx context.Context, inv *invoice.Invoice, svcID id.ServiceID, expectedNext, newNext time.Time) error
	UpdateServiceStatus(ctx context.Context, svcID id.ServiceID, from []Status, to Status, at time.Time) error
}
