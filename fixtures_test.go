package fulfill_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/types"
)

// t0 is the reference clock for engine tests.
var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *fulfill.Engine
	store    *memory.Store
	customer *customer.Customer
	hosting  *servicetype.ServiceType
	domain   *servicetype.ServiceType
	ssl      *servicetype.ServiceType
	email    *servicetype.ServiceType
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...fulfill.Option) *fixture {
	t.Helper()

	s := memory.New()
	opts = append([]fulfill.Option{fulfill.WithLogger(quietLogger())}, opts...)
	e := fulfill.New(s, opts...)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop(context.Background()) })

	f := &fixture{engine: e, store: s}

	f.customer = &customer.Customer{Name: "Jane Doe", Email: "jane@example.com", Company: "Acme"}
	require.NoError(t, e.CreateCustomer(ctx, f.customer, t0))

	f.hosting = f.addServiceType(t, "Basic Hosting", "basic-hosting", servicetype.TypeHosting, types.USD(999), servicetype.CycleMonthly)
	f.domain = f.addServiceType(t, "Domain Registration", "domain-registration", servicetype.TypeDomain, types.USD(1299), servicetype.CycleYearly)
	f.ssl = f.addServiceType(t, "SSL Certificate", "ssl-certificate", servicetype.TypeSSL, types.USD(4999), servicetype.CycleYearly)
	f.email = f.addServiceType(t, "Business Email", "business-email", servicetype.TypeEmail, types.USD(499), servicetype.CycleQuarterly)

	return f
}

func (f *fixture) addServiceType(t *testing.T, name, slug string, typ servicetype.Type, price types.Money, cycle servicetype.BillingCycle) *servicetype.ServiceType {
	t.Helper()
	st := &servicetype.ServiceType{
		Name:         name,
		Slug:         slug,
		Type:         typ,
		Price:        price,
		BillingCycle: cycle,
		Features:     map[string]any{"storage": "10GB", "bandwidth": "100GB", "email_accounts": 5},
		Active:       true,
	}
	require.NoError(t, f.engine.CreateServiceType(context.Background(), st, t0))
	return st
}

// order places a one-line order and returns it with its invoice.
func (f *fixture) order(t *testing.T, st *servicetype.ServiceType, domain string, now time.Time) (*order.Order, *invoice.Invoice) {
	t.Helper()
	o, inv, err := f.engine.CreateOrder(context.Background(), f.customer.ID, []order.ItemInput{
		{ServiceTypeID: st.ID, Quantity: 1, DomainName: domain},
	}, now)
	require.NoError(t, err)
	return o, inv
}

// paidService places and pays a one-line order and returns the service.
func (f *fixture) paidService(t *testing.T, st *servicetype.ServiceType, domain string, now time.Time) *service.Service {
	t.Helper()
	o, _ := f.order(t, st, domain, now)
	res, err := f.engine.MarkPaid(context.Background(), o.ID, now)
	require.NoError(t, err)
	require.Len(t, res.Services, 1)
	return res.Services[0]
}

func (f *fixture) recurringInvoices(t *testing.T, svcID id.ServiceID) []*invoice.Invoice {
	t.Helper()
	recurring := true
	invs, err := f.engine.ListInvoices(context.Background(), invoice.ListOpts{ServiceID: svcID, Recurring: &recurring})
	require.NoError(t, err)
	return invs
}

// eventRecorder captures plugin events for assertions.
type eventRecorder struct {
	mu                 sync.Mutex
	ordersCreated      int
	ordersPaid         int
	provisioned        int
	provisioningFailed []error
	recurring          int
	runs               int
	overdue            []int64
	statusChanges      []service.Status
}

func (r *eventRecorder) Name() string { return "recorder" }

func (r *eventRecorder) OnOrderCreated(context.Context, *order.Order, *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ordersCreated++
	return nil
}

func (r *eventRecorder) OnOrderPaid(context.Context, id.OrderID, time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ordersPaid++
	return nil
}

func (r *eventRecorder) OnServiceProvisioned(context.Context, *service.Service, *servicetype.ServiceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisioned++
	return nil
}

func (r *eventRecorder) OnProvisioningFailed(_ context.Context, _ *service.Service, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provisioningFailed = append(r.provisioningFailed, err)
	return nil
}

func (r *eventRecorder) OnRecurringInvoiceGenerated(context.Context, *invoice.Invoice, *service.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recurring++
	return nil
}

func (r *eventRecorder) OnBillingRunCompleted(context.Context, int, int, time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	return nil
}

func (r *eventRecorder) OnInvoicesOverdue(_ context.Context, count int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdue = append(r.overdue, count)
	return nil
}

func (r *eventRecorder) OnServiceStatusChanged(_ context.Context, _ *service.Service, _, to service.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusChanges = append(r.statusChanges, to)
	return nil
}
