package store

import (
	"context"
	"time"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// Store is the unified storage interface for all fulfill entities. The
// entity interfaces use distinct method names so they can be embedded
// side by side.
type Store interface {
	customer.Store
	servicetype.Store
	order.Store
	invoice.Store
	service.Store

	// BillingStats aggregates dashboard figures. Monthly revenue covers
	// invoices paid in [monthStart, monthEnd); services due count active
	// services whose next billing date is at or before dueBefore.
	BillingStats(ctx context.Context, monthStart, monthEnd, dueBefore time.Time) (*Stats, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time billing summary. Money sums are keyed by
// currency because the catalog may price in more than one.
type Stats struct {
	TotalCustomers     int64                  `json:"total_customers"`
	PendingInvoices    int64                  `json:"pending_invoices"`
	OverdueInvoices    int64                  `json:"overdue_invoices"`
	PendingOrders      int64                  `json:"pending_orders"`
	ActiveServices     int64                  `json:"active_services"`
	ServicesDueBilling int64                  `json:"services_due_billing"`
	MonthlyRevenue     map[string]types.Money `json:"monthly_revenue"`
	TotalOutstanding   map[string]types.Money `json:"total_outstanding"`
}

// NewStats returns a Stats with initialized money maps.
func NewStats() *Stats {
	return &Stats{
		MonthlyRevenue:   map[string]types.Money{},
		TotalOutstanding: map[string]types.Money{},
	}
}

// AddRevenue adds m to the monthly revenue bucket of its currency.
func (s *Stats) AddRevenue(m types.Money) {
	s.MonthlyRevenue[m.Currency] = addTo(s.MonthlyRevenue, m)
}

// AddOutstanding adds m to the outstanding bucket of its currency.
func (s *Stats) AddOutstanding(m types.Money) {
	s.TotalOutstanding[m.Currency] = addTo(s.TotalOutstanding, m)
}

func addTo(bucket map[string]types.Money, m types.Money) types.Money {
	cur, ok := bucket[m.Currency]
	if !ok {
		return m
	}
	return cur.Add(m)
}
