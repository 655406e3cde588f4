// Package storetest holds the behavioural checks every store.Store backend
// must pass. Backends call Run from their own tests with a fresh store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/types"
)

// Factory returns an empty, migrated store. Run closes it.
type Factory func(t *testing.T) store.Store

var (
	base    = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	counter atomic.Int64
)

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CustomerRoundTrip", testCustomerRoundTrip},
		{"ServiceTypeSlugUnique", testServiceTypeSlugUnique},
		{"ServiceTypeListAndDelete", testServiceTypeListAndDelete},
		{"CreateOrderAtomic", testCreateOrderAtomic},
		{"OrderStatusGuard", testOrderStatusGuard},
		{"SettleOrder", testSettleOrder},
		{"InvoiceTransitions", testInvoiceTransitions},
		{"MarkOverdue", testMarkOverdue},
		{"ServiceRoundTrip", testServiceRoundTrip},
		{"ListDueServices", testListDueServices},
		{"BillServiceClaim", testBillServiceClaim},
		{"BillServiceConcurrent", testBillServiceConcurrent},
		{"BillingStats", testBillingStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// ──────────────────────────────────────────────────
// Builders
// ──────────────────────────────────────────────────

func seq() int64 { return counter.Add(1) }

func newCustomer(t *testing.T, s store.Store) *customer.Customer {
	t.Helper()
	c := &customer.Customer{
		Entity:   types.NewEntityAt(base),
		ID:       id.NewCustomerID(),
		Name:     "Jane Doe",
		Email:    fmt.Sprintf("jane%d@example.com", seq()),
		Metadata: map[string]string{"tier": "gold"},
	}
	require.NoError(t, s.CreateCustomer(context.Background(), c))
	return c
}

func newServiceType(t *testing.T, s store.Store, typ servicetype.Type, price types.Money, cycle servicetype.BillingCycle) *servicetype.ServiceType {
	t.Helper()
	n := seq()
	st := &servicetype.ServiceType{
		Entity:       types.NewEntityAt(base),
		ID:           id.NewServiceTypeID(),
		Name:         fmt.Sprintf("Plan %d", n),
		Slug:         fmt.Sprintf("plan-%d", n),
		Type:         typ,
		Price:        price,
		BillingCycle: cycle,
		Features:     map[string]any{"storage": "10GB"},
		Active:       true,
	}
	require.NoError(t, s.CreateServiceType(context.Background(), st))
	return st
}

func newOrder(c *customer.Customer, st *servicetype.ServiceType, at time.Time) (*order.Order, *invoice.Invoice) {
	n := seq()
	tax := st.Price.ApplyRate(1000)
	o := &order.Order{
		Entity:     types.NewEntityAt(at),
		ID:         id.NewOrderID(),
		CustomerID: c.ID,
		Number:     fmt.Sprintf("ORD-%d", n),
		Items: []order.Item{{
			ServiceTypeID: st.ID,
			Name:          st.Name,
			Quantity:      1,
			UnitPrice:     st.Price,
			LineTotal:     st.Price,
			DomainName:    "example.com",
		}},
		Currency:  st.Price.Currency,
		Subtotal:  st.Price,
		TaxAmount: tax,
		Total:     st.Price.Add(tax),
		Status:    order.StatusPending,
	}
	inv := &invoice.Invoice{
		Entity:     types.NewEntityAt(at),
		ID:         id.NewInvoiceID(),
		CustomerID: c.ID,
		OrderID:    o.ID,
		Number:     fmt.Sprintf("INV-%d", n),
		Currency:   o.Currency,
		Amount:     o.Subtotal,
		TaxAmount:  o.TaxAmount,
		Total:      o.Total,
		Status:     invoice.StatusPending,
		DueDate:    at.AddDate(0, 0, 30),
		LineItems: []invoice.LineItem{{
			Description: o.Items[0].Description(),
			Quantity:    1,
			UnitPrice:   st.Price,
			Total:       st.Price,
		}},
	}
	return o, inv
}

func newService(t *testing.T, s store.Store, c *customer.Customer, st *servicetype.ServiceType, next time.Time) *service.Service {
	t.Helper()
	svc := &service.Service{
		Entity:        types.NewEntityAt(base),
		ID:            id.NewServiceID(),
		CustomerID:    c.ID,
		ServiceTypeID: st.ID,
		DomainName:    "example.com",
		Configuration: service.Configuration{
			ServerLocation: "US-East",
			PHPVersion:     "8.2",
			MySQLVersion:   "8.0",
			CreatedAt:      base,
			Features:       map[string]any{"storage": "10GB"},
		},
		Status:          service.StatusActive,
		NextBillingDate: next,
		ExpiryDate:      next,
		ProvisioningData: service.ProvisioningData{
			Kind:          st.Type,
			ProvisionedAt: base,
			ServerID:      fmt.Sprintf("SRV-%d", seq()),
			Hosting: &service.Hosting{
				AccountUsername: "user1234",
				AccountPassword: "0123456789abcdef",
				ControlPanelURL: "https://cp.example.com",
				FTPHost:         "ftp.example.com",
				Nameservers:     []string{"ns1.example.com", "ns2.example.com"},
			},
		},
	}
	require.NoError(t, s.CreateService(context.Background(), svc))
	return svc
}

func recurringInvoice(c *customer.Customer, svc *service.Service, st *servicetype.ServiceType, at time.Time) *invoice.Invoice {
	return &invoice.Invoice{
		Entity:      types.NewEntityAt(at),
		ID:          id.NewInvoiceID(),
		CustomerID:  c.ID,
		ServiceID:   svc.ID,
		Number:      fmt.Sprintf("INV-R%d", seq()),
		Currency:    st.Price.Currency,
		Amount:      st.Price,
		TaxAmount:   types.Zero(st.Price.Currency),
		Total:       st.Price,
		Status:      invoice.StatusPending,
		DueDate:     at.AddDate(0, 0, 30),
		IsRecurring: true,
		LineItems: []invoice.LineItem{{
			Description: st.Name + " (Recurring)",
			Quantity:    1,
			UnitPrice:   st.Price,
			Total:       st.Price,
		}},
	}
}

func sameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

// ──────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────

func testCustomerRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Email, got.Email)
	assert.Equal(t, "gold", got.Metadata["tier"])

	_, err = s.GetCustomer(ctx, id.NewCustomerID())
	assert.ErrorIs(t, err, fulfill.ErrCustomerNotFound)

	n, err := s.CountCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testServiceTypeSlugUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	dup := *st
	dup.ID = id.NewServiceTypeID()
	err := s.CreateServiceType(ctx, &dup)
	assert.True(t, fulfill.IsDuplicateKey(err), "got %v", err)

	got, err := s.GetServiceTypeBySlug(ctx, st.Slug)
	require.NoError(t, err)
	assert.Equal(t, st.ID.String(), got.ID.String())
	assert.Equal(t, types.USD(999), got.Price)
	assert.Equal(t, servicetype.CycleMonthly, got.BillingCycle)
	assert.Equal(t, "10GB", got.Features["storage"])
}

func testServiceTypeListAndDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	hosting := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	newServiceType(t, s, servicetype.TypeSSL, types.USD(4999), servicetype.CycleYearly)

	all, err := s.ListServiceTypes(ctx, servicetype.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ssl, err := s.ListServiceTypes(ctx, servicetype.ListOpts{Type: servicetype.TypeSSL})
	require.NoError(t, err)
	require.Len(t, ssl, 1)
	assert.Equal(t, servicetype.TypeSSL, ssl[0].Type)

	require.NoError(t, s.DeleteServiceType(ctx, hosting.ID))
	_, err = s.GetServiceType(ctx, hosting.ID)
	assert.ErrorIs(t, err, fulfill.ErrServiceTypeNotFound)
	assert.ErrorIs(t, s.DeleteServiceType(ctx, hosting.ID), fulfill.ErrServiceTypeNotFound)
}

func testCreateOrderAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	o, inv := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o, inv))

	got, err := s.GetOrderByNumber(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), got.ID.String())
	assert.Equal(t, types.USD(1099), got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "example.com", got.Items[0].DomainName)

	gotInv, err := s.GetInvoiceByNumber(ctx, inv.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), gotInv.OrderID.String())
	assert.True(t, gotInv.ServiceID.IsNil())
	require.Len(t, gotInv.LineItems, 1)
	assert.Equal(t, st.Name+" - example.com", gotInv.LineItems[0].Description)

	// Same invoice number with a fresh order: neither row may land.
	o2, inv2 := newOrder(c, st, base)
	inv2.Number = inv.Number
	err = s.CreateOrder(ctx, o2, inv2)
	assert.True(t, fulfill.IsDuplicateKey(err), "got %v", err)

	_, err = s.GetOrder(ctx, o2.ID)
	assert.ErrorIs(t, err, fulfill.ErrOrderNotFound)
	_, err = s.GetInvoice(ctx, inv2.ID)
	assert.ErrorIs(t, err, fulfill.ErrInvoiceNotFound)

	// Same order number.
	o3, inv3 := newOrder(c, st, base)
	o3.Number = o.Number
	err = s.CreateOrder(ctx, o3, inv3)
	assert.True(t, fulfill.IsDuplicateKey(err), "got %v", err)
	_, err = s.GetInvoice(ctx, inv3.ID)
	assert.ErrorIs(t, err, fulfill.ErrInvoiceNotFound)
}

func testOrderStatusGuard(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	o, inv := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o, inv))

	err := s.UpdateOrderStatus(ctx, o.ID, []order.Status{order.StatusPaid}, order.StatusRefunded, base)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, []order.Status{order.StatusPending}, order.StatusCancelled, base))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	err = s.UpdateOrderStatus(ctx, id.NewOrderID(), []order.Status{order.StatusPending}, order.StatusCancelled, base)
	assert.ErrorIs(t, err, fulfill.ErrOrderNotFound)

	pending, err := s.ListOrders(ctx, order.ListOpts{Status: order.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func testSettleOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	o, inv := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o, inv))

	paidAt := base.Add(time.Hour)
	ok, err := s.SettleOrder(ctx, o.ID, paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	sameTime(t, paidAt, *got.PaidAt)

	gotInv, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, gotInv.Status)
	require.NotNil(t, gotInv.PaidAt)
	sameTime(t, paidAt, *gotInv.PaidAt)

	ok, err = s.SettleOrder(ctx, o.ID, paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.SettleOrder(ctx, id.NewOrderID(), paidAt)
	assert.ErrorIs(t, err, fulfill.ErrOrderNotFound)
}

func testInvoiceTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	o1, inv1 := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o1, inv1))
	require.NoError(t, s.MarkInvoicePaid(ctx, inv1.ID, base))
	assert.ErrorIs(t, s.MarkInvoicePaid(ctx, inv1.ID, base), fulfill.ErrInvalidTransition)
	assert.ErrorIs(t, s.CancelInvoice(ctx, inv1.ID, base), fulfill.ErrInvalidTransition)

	o2, inv2 := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o2, inv2))
	require.NoError(t, s.CancelInvoice(ctx, inv2.ID, base))
	assert.ErrorIs(t, s.MarkInvoicePaid(ctx, inv2.ID, base), fulfill.ErrInvalidTransition)

	got, err := s.GetInvoice(ctx, inv2.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, got.Status)
	assert.Nil(t, got.PaidAt)

	assert.ErrorIs(t, s.MarkInvoicePaid(ctx, id.NewInvoiceID(), base), fulfill.ErrInvoiceNotFound)

	byOrder, err := s.ListInvoices(ctx, invoice.ListOpts{OrderID: o1.ID})
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.Equal(t, inv1.ID.String(), byOrder[0].ID.String())
}

func testMarkOverdue(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	o1, late := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o1, late))
	o2, paid := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o2, paid))
	require.NoError(t, s.MarkInvoicePaid(ctx, paid.ID, base))
	o3, fresh := newOrder(c, st, base.AddDate(0, 0, 10))
	require.NoError(t, s.CreateOrder(ctx, o3, fresh))

	now := late.DueDate.Add(time.Hour)
	n, err := s.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	overdue, err := s.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID.String(), overdue[0].ID.String())
}

func testServiceRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	next := base.AddDate(0, 1, 0)
	svc := newService(t, s, c, st, next)

	got, err := s.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, service.StatusActive, got.Status)
	sameTime(t, next, got.NextBillingDate)
	sameTime(t, next, got.ExpiryDate)
	assert.Equal(t, "8.2", got.Configuration.PHPVersion)
	assert.Equal(t, "10GB", got.Configuration.Features["storage"])
	assert.Equal(t, servicetype.TypeHosting, got.ProvisioningData.Kind)
	require.NotNil(t, got.ProvisioningData.Hosting)
	assert.Equal(t, "user1234", got.ProvisioningData.Hosting.AccountUsername)
	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, got.ProvisioningData.Hosting.Nameservers)
	assert.Nil(t, got.ProvisioningData.Domain)

	require.NoError(t, s.UpdateServiceStatus(ctx, svc.ID,
		[]service.Status{service.StatusActive}, service.StatusSuspended, base))
	err = s.UpdateServiceStatus(ctx, svc.ID,
		[]service.Status{service.StatusActive}, service.StatusSuspended, base)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	suspended, err := s.ListServices(ctx, service.ListOpts{CustomerID: c.ID, Status: service.StatusSuspended})
	require.NoError(t, err)
	assert.Len(t, suspended, 1)

	_, err = s.GetService(ctx, id.NewServiceID())
	assert.ErrorIs(t, err, fulfill.ErrServiceNotFound)
}

func testListDueServices(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	now := base.AddDate(0, 1, 0)
	later := newService(t, s, c, st, now)
	earlier := newService(t, s, c, st, now.Add(-48*time.Hour))
	newService(t, s, c, st, now.Add(time.Second))
	suspended := newService(t, s, c, st, now.Add(-time.Hour))
	require.NoError(t, s.UpdateServiceStatus(ctx, suspended.ID,
		[]service.Status{service.StatusActive}, service.StatusSuspended, base))

	due, err := s.ListDueServices(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, earlier.ID.String(), due[0].ID.String())
	assert.Equal(t, later.ID.String(), due[1].ID.String())
}

func testBillServiceClaim(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	due := base.AddDate(0, 1, 0)
	svc := newService(t, s, c, st, due)
	next := servicetype.NextBillingDate(st.BillingCycle, due)

	inv := recurringInvoice(c, svc, st, due)
	require.NoError(t, s.BillService(ctx, inv, svc.ID, due, next))

	got, err := s.GetService(ctx, svc.ID)
	require.NoError(t, err)
	sameTime(t, next, got.NextBillingDate)
	sameTime(t, next, got.ExpiryDate)

	stored, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRecurring)
	assert.True(t, stored.OrderID.IsNil())
	assert.Equal(t, svc.ID.String(), stored.ServiceID.String())

	// A second claim on the same period loses and writes nothing.
	again := recurringInvoice(c, svc, st, due)
	err = s.BillService(ctx, again, svc.ID, due, next)
	assert.ErrorIs(t, err, fulfill.ErrBillingClaimLost)
	_, err = s.GetInvoice(ctx, again.ID)
	assert.ErrorIs(t, err, fulfill.ErrInvoiceNotFound)

	// A duplicate invoice number rolls back the date advance.
	clash := recurringInvoice(c, svc, st, next)
	clash.Number = inv.Number
	err = s.BillService(ctx, clash, svc.ID, next, servicetype.NextBillingDate(st.BillingCycle, next))
	assert.True(t, fulfill.IsDuplicateKey(err), "got %v", err)
	got, err = s.GetService(ctx, svc.ID)
	require.NoError(t, err)
	sameTime(t, next, got.NextBillingDate)

	require.NoError(t, s.UpdateServiceStatus(ctx, svc.ID,
		[]service.Status{service.StatusActive}, service.StatusSuspended, base))
	suspended := recurringInvoice(c, svc, st, next)
	err = s.BillService(ctx, suspended, svc.ID, next, next.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, fulfill.ErrBillingClaimLost)
	_, err = s.GetInvoice(ctx, suspended.ID)
	assert.ErrorIs(t, err, fulfill.ErrInvoiceNotFound)

	// Billing a service that does not exist leaves no invoice behind.
	orphan := recurringInvoice(c, svc, st, next)
	err = s.BillService(ctx, orphan, id.NewServiceID(), next, next.AddDate(0, 1, 0))
	assert.ErrorIs(t, err, fulfill.ErrServiceNotFound)
	_, err = s.GetInvoice(ctx, orphan.ID)
	assert.ErrorIs(t, err, fulfill.ErrInvoiceNotFound)

	recurring := true
	invs, err := s.ListInvoices(ctx, invoice.ListOpts{ServiceID: svc.ID, Recurring: &recurring})
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func testBillServiceConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	due := base.AddDate(0, 1, 0)
	svc := newService(t, s, c, st, due)
	next := servicetype.NextBillingDate(st.BillingCycle, due)

	const workers = 6
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.BillService(ctx, recurringInvoice(c, svc, st, due), svc.ID, due, next)
			switch {
			case err == nil:
				wins.Add(1)
			case fulfill.IsRetryable(err):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	invs, err := s.ListInvoices(ctx, invoice.ListOpts{ServiceID: svc.ID})
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func testBillingStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCustomer(t, s)
	st := newServiceType(t, s, servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)

	o1, inv1 := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o1, inv1))
	o2, inv2 := newOrder(c, st, base)
	require.NoError(t, s.CreateOrder(ctx, o2, inv2))
	_, err := s.SettleOrder(ctx, o2.ID, base)
	require.NoError(t, err)

	newService(t, s, c, st, base.AddDate(0, 0, 3))
	newService(t, s, c, st, base.AddDate(0, 1, 0))

	monthStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stats, err := s.BillingStats(ctx, monthStart, monthStart.AddDate(0, 1, 0), base.AddDate(0, 0, 7))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.TotalCustomers)
	assert.Equal(t, int64(1), stats.PendingOrders)
	assert.Equal(t, int64(1), stats.PendingInvoices)
	assert.Zero(t, stats.OverdueInvoices)
	assert.Equal(t, int64(2), stats.ActiveServices)
	assert.Equal(t, int64(1), stats.ServicesDueBilling)
	assert.Equal(t, types.USD(1099), stats.MonthlyRevenue["usd"])
	assert.Equal(t, types.USD(1099), stats.TotalOutstanding["usd"])
}
