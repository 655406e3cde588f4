package fulfill_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

func TestRecurringBillingInvoicesDueService(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "example.com", t0)
	due := svc.NextBillingDate
	require.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), due)

	res, err := f.engine.RunRecurringBilling(ctx, due)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Generated)
	require.Len(t, res.Invoices, 1)

	inv := res.Invoices[0]
	assert.True(t, inv.IsRecurring)
	assert.True(t, inv.OrderID.IsNil())
	assert.Equal(t, svc.ID.String(), inv.ServiceID.String())
	assert.Equal(t, f.customer.ID.String(), inv.CustomerID.String())
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, types.USD(999), inv.Amount)
	assert.Equal(t, types.USD(100), inv.TaxAmount)
	assert.Equal(t, types.USD(1099), inv.Total)
	assert.Equal(t, due.Add(30*24*time.Hour), inv.DueDate)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Basic Hosting - example.com (Recurring)", inv.LineItems[0].Description)

	stored, err := f.engine.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), stored.NextBillingDate)
	assert.Equal(t, stored.NextBillingDate, stored.ExpiryDate)

	again, err := f.engine.RunRecurringBilling(ctx, due)
	require.NoError(t, err)
	assert.Zero(t, again.Generated)
	assert.Len(t, f.recurringInvoices(t, svc.ID), 1)

	assert.Equal(t, 1, rec.recurring)
	assert.Equal(t, 2, rec.runs)
}

func TestRecurringBillingSkipsServicesNotYetDue(t *testing.T) {
	f := newFixture(t)

	svc := f.paidService(t, f.hosting, "", t0)
	res, err := f.engine.RunRecurringBilling(context.Background(), svc.NextBillingDate.Add(-time.Second))
	require.NoError(t, err)
	assert.Zero(t, res.Generated)
	assert.Empty(t, f.recurringInvoices(t, svc.ID))
}

func TestRecurringBillingDescriptionWithoutDomain(t *testing.T) {
	f := newFixture(t)

	svc := f.paidService(t, f.email, "", t0)
	res, err := f.engine.RunRecurringBilling(context.Background(), svc.NextBillingDate)
	require.NoError(t, err)
	require.Len(t, res.Invoices, 1)
	assert.Equal(t, "Business Email (Recurring)", res.Invoices[0].LineItems[0].Description)
	assert.Equal(t, types.USD(549), res.Invoices[0].Total)
}

func TestRecurringBillingIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hosting := f.paidService(t, f.hosting, "a.com", t0)
	email := f.paidService(t, f.email, "b.com", t0)
	mailbox := f.paidService(t, f.email, "c.com", t0)
	require.NoError(t, f.engine.DeleteServiceType(ctx, f.hosting.ID))

	now := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	res, err := f.engine.RunRecurringBilling(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, hosting.ID.String(), res.Errors[0].ServiceID.String())
	assert.ErrorIs(t, res.Err(), fulfill.ErrServiceTypeNotFound)

	storedHosting, err := f.engine.GetService(ctx, hosting.ID)
	require.NoError(t, err)
	assert.Equal(t, hosting.NextBillingDate, storedHosting.NextBillingDate)
	assert.Empty(t, f.recurringInvoices(t, hosting.ID))

	for _, healthy := range []*service.Service{email, mailbox} {
		stored, err := f.engine.GetService(ctx, healthy.ID)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC), stored.NextBillingDate)
		assert.Len(t, f.recurringInvoices(t, healthy.ID), 1)
	}

	// The hosting service stays due for the next run.
	due, err := f.store.ListDueServices(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, hosting.ID.String(), due[0].ID.String())
}

func TestRecurringBillingLateRunAdvancesFromRunTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "", t0)
	late := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	res, err := f.engine.RunRecurringBilling(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)

	stored, err := f.engine.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC), stored.NextBillingDate)
}

func TestConcurrentBillingRunsInvoiceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const services = 5
	ids := make([]string, 0, services)
	var due time.Time
	for range services {
		svc := f.paidService(t, f.hosting, "", t0)
		ids = append(ids, svc.ID.String())
		due = svc.NextBillingDate
	}

	const runs = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		generated int
	)
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.RunRecurringBilling(ctx, due)
			if err != nil {
				t.Error(err)
				return
			}
			for _, se := range res.Errors {
				assert.ErrorIs(t, se, fulfill.ErrBillingClaimLost)
			}
			mu.Lock()
			generated += res.Generated
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, services, generated)

	recurring := true
	invs, err := f.engine.ListInvoices(ctx, invoice.ListOpts{Recurring: &recurring})
	require.NoError(t, err)
	assert.Len(t, invs, services)

	perService := map[string]int{}
	for _, inv := range invs {
		perService[inv.ServiceID.String()]++
	}
	for _, sid := range ids {
		assert.Equal(t, 1, perService[sid], "service %s", sid)
	}
}

func TestBillingDateMonotonicOverTwoYears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	svc := f.paidService(t, f.hosting, "", start)

	prev := svc.NextBillingDate
	for range 24 {
		res, err := f.engine.RunRecurringBilling(ctx, prev)
		require.NoError(t, err)
		require.Equal(t, 1, res.Generated)

		stored, err := f.engine.GetService(ctx, svc.ID)
		require.NoError(t, err)
		require.True(t, stored.NextBillingDate.After(prev), "%s not after %s", stored.NextBillingDate, prev)
		prev = stored.NextBillingDate
	}
	assert.Len(t, f.recurringInvoices(t, svc.ID), 24)
}

func TestAdvanceBillingDate(t *testing.T) {
	tests := []struct {
		name    string
		cycle   servicetype.BillingCycle
		current time.Time
		now     time.Time
		want    time.Time
	}{
		{
			name:    "on time",
			cycle:   servicetype.CycleMonthly,
			current: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "late run",
			cycle:   servicetype.CycleQuarterly,
			current: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "early run",
			cycle:   servicetype.CycleYearly,
			current: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fulfill.AdvanceBillingDate(tt.cycle, tt.current, tt.now)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.current))
		})
	}
}

// ──────────────────────────────────────────────────
// Overdue sweep
// ──────────────────────────────────────────────────

func TestOverdueSweep(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))
	ctx := context.Background()

	_, unpaid := f.order(t, f.hosting, "", t0)
	paidOrder, paid := f.order(t, f.ssl, "", t0)
	_, err := f.engine.MarkPaid(ctx, paidOrder.ID, t0)
	require.NoError(t, err)

	// Not yet due.
	n, err := f.engine.RunOverdueSweep(ctx, unpaid.DueDate)
	require.NoError(t, err)
	assert.Zero(t, n)

	later := unpaid.DueDate.Add(24 * time.Hour)
	n, err = f.engine.RunOverdueSweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.engine.RunOverdueSweep(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := f.engine.GetInvoice(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusOverdue, stored.Status)

	storedPaid, err := f.engine.GetInvoice(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, storedPaid.Status)

	assert.Equal(t, []int64{1}, rec.overdue)
}

func TestOverdueInvoiceCanStillBePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, inv := f.order(t, f.hosting, "", t0)
	later := inv.DueDate.Add(time.Hour)
	_, err := f.engine.RunOverdueSweep(ctx, later)
	require.NoError(t, err)

	res, err := f.engine.PayInvoice(ctx, inv.ID, later)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Provisioned)

	stored, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, stored.Status)
}

// ──────────────────────────────────────────────────
// Service lifecycle
// ──────────────────────────────────────────────────

func TestSuspendedServiceIsNotBilled(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "", t0)

	suspended, err := f.engine.SuspendService(ctx, svc.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, service.StatusSuspended, suspended.Status)

	res, err := f.engine.RunRecurringBilling(ctx, svc.NextBillingDate)
	require.NoError(t, err)
	assert.Zero(t, res.Generated)

	_, err = f.engine.SuspendService(ctx, svc.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	reactivated, err := f.engine.ReactivateService(ctx, svc.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, service.StatusActive, reactivated.Status)

	res, err = f.engine.RunRecurringBilling(ctx, svc.NextBillingDate)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)

	assert.Equal(t, []service.Status{service.StatusSuspended, service.StatusActive}, rec.statusChanges)
}

func TestCancelledServiceIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "", t0)

	cancelled, err := f.engine.CancelService(ctx, svc.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, service.StatusCancelled, cancelled.Status)

	_, err = f.engine.ReactivateService(ctx, svc.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)
	_, err = f.engine.CancelService(ctx, svc.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	res, err := f.engine.RunRecurringBilling(ctx, svc.NextBillingDate.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, res.Generated)
}

type recordingSuspender struct {
	mu          sync.Mutex
	suspended   int
	reactivated int
}

func (*recordingSuspender) Provision(context.Context, *service.Service, *servicetype.ServiceType) error {
	return nil
}

func (r *recordingSuspender) Suspend(context.Context, *service.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended++
	return nil
}

func (r *recordingSuspender) Reactivate(context.Context, *service.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactivated++
	return nil
}

func TestServiceTransitionsReachProvisioner(t *testing.T) {
	p := &recordingSuspender{}
	f := newFixture(t, fulfill.WithProvisioner(p))
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "", t0)
	_, err := f.engine.SuspendService(ctx, svc.ID, t0)
	require.NoError(t, err)
	_, err = f.engine.ReactivateService(ctx, svc.ID, t0)
	require.NoError(t, err)
	_, err = f.engine.CancelService(ctx, svc.ID, t0)
	require.NoError(t, err)

	assert.Equal(t, 2, p.suspended)
	assert.Equal(t, 1, p.reactivated)
}

type recordingCanceller struct {
	recordingSuspender
	cancelled int
}

func (r *recordingCanceller) Cancel(context.Context, *service.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
	return nil
}

func TestCancelServiceUsesCanceller(t *testing.T) {
	p := &recordingCanceller{}
	f := newFixture(t, fulfill.WithProvisioner(p))
	ctx := context.Background()

	active := f.paidService(t, f.hosting, "a.com", t0)
	_, err := f.engine.CancelService(ctx, active.ID, t0)
	require.NoError(t, err)

	suspended := f.paidService(t, f.hosting, "b.com", t0)
	_, err = f.engine.SuspendService(ctx, suspended.ID, t0)
	require.NoError(t, err)
	_, err = f.engine.CancelService(ctx, suspended.ID, t0)
	require.NoError(t, err)

	assert.Equal(t, 2, p.cancelled)
	assert.Equal(t, 1, p.suspended)
	assert.Zero(t, p.reactivated)
}

// ──────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────

func TestBillingStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.order(t, f.hosting, "", t0.Add(48*time.Hour)) // stays pending
	svc := f.paidService(t, f.hosting, "a.com", t0) // paid this month, due 02-15
	f.paidService(t, f.domain, "b.com", t0)         // paid this month, due next year
	_, overdueInv := f.order(t, f.ssl, "", t0)      // swept below
	_, err := f.engine.RunOverdueSweep(ctx, overdueInv.DueDate.Add(time.Hour))
	require.NoError(t, err)

	now := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	stats, err := f.engine.BillingStats(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.TotalCustomers)
	assert.Equal(t, int64(2), stats.PendingOrders)
	assert.Equal(t, int64(1), stats.PendingInvoices)
	assert.Equal(t, int64(1), stats.OverdueInvoices)
	assert.Equal(t, int64(2), stats.ActiveServices)
	assert.Zero(t, stats.ServicesDueBilling)
	// 10.99 + 14.29
	assert.Equal(t, types.USD(2528), stats.MonthlyRevenue["usd"])
	// 10.99 + 54.99
	assert.Equal(t, types.USD(6598), stats.TotalOutstanding["usd"])

	// Within the default seven-day horizon of the hosting renewal.
	stats, err = f.engine.BillingStats(ctx, svc.NextBillingDate.Add(-3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ServicesDueBilling)
	assert.Empty(t, stats.MonthlyRevenue)
}
