package fulfill_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/numbering"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

func TestCreateOrderSingleHostingItem(t *testing.T) {
	f := newFixture(t)

	o, inv := f.order(t, f.hosting, "example.com", t0)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, strings.HasPrefix(o.Number, "ORD-"))
	assert.Equal(t, types.USD(999), o.Subtotal)
	assert.Equal(t, types.USD(100), o.TaxAmount)
	assert.Equal(t, types.USD(1099), o.Total)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Basic Hosting", o.Items[0].Name)
	assert.Equal(t, types.USD(999), o.Items[0].UnitPrice)
	assert.Nil(t, o.PaidAt)

	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.True(t, strings.HasPrefix(inv.Number, "INV-"))
	assert.Equal(t, o.ID.String(), inv.OrderID.String())
	assert.Equal(t, types.USD(999), inv.Amount)
	assert.Equal(t, types.USD(100), inv.TaxAmount)
	assert.Equal(t, types.USD(1099), inv.Total)
	assert.Equal(t, t0.Add(30*24*time.Hour), inv.DueDate)
	assert.False(t, inv.IsRecurring)
	assert.Nil(t, inv.PaidAt)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Basic Hosting - example.com", inv.LineItems[0].Description)
	assert.Equal(t, int64(1), inv.LineItems[0].Quantity)
	assert.Equal(t, types.USD(999), inv.LineItems[0].Total)

	stored, err := f.engine.GetOrderByNumber(context.Background(), o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), stored.ID.String())

	storedInv, err := f.engine.GetInvoiceByNumber(context.Background(), inv.Number)
	require.NoError(t, err)
	assert.Equal(t, inv.ID.String(), storedInv.ID.String())
}

func TestCreateOrderTotals(t *testing.T) {
	f := newFixture(t)

	o, inv, err := f.engine.CreateOrder(context.Background(), f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 2, DomainName: "a.com"},
		{ServiceTypeID: f.domain.ID, Quantity: 1, DomainName: "b.org"},
		{ServiceTypeID: f.ssl.ID, Quantity: 1},
	}, t0)
	require.NoError(t, err)

	// 2×9.99 + 12.99 + 49.99 = 82.96, tax 8.296 → 8.30
	assert.Equal(t, types.USD(8296), o.Subtotal)
	assert.Equal(t, types.USD(830), o.TaxAmount)
	assert.Equal(t, types.USD(9126), o.Total)
	assert.Equal(t, o.Subtotal.Add(o.TaxAmount), o.Total)

	var lineSum types.Money = types.Zero("usd")
	for _, it := range o.Items {
		lineSum = lineSum.Add(it.LineTotal)
	}
	assert.Equal(t, o.Subtotal, lineSum)

	require.Len(t, inv.LineItems, 3)
	assert.Equal(t, "Basic Hosting - a.com", inv.LineItems[0].Description)
	assert.Equal(t, int64(2), inv.LineItems[0].Quantity)
	assert.Equal(t, types.USD(1998), inv.LineItems[0].Total)
	assert.Equal(t, "Domain Registration - b.org", inv.LineItems[1].Description)
	assert.Equal(t, "SSL Certificate", inv.LineItems[2].Description)
}

func TestCreateOrderConfigurableTaxAndTerms(t *testing.T) {
	f := newFixture(t, fulfill.WithTaxRate(2000), fulfill.WithPaymentTerms(14*24*time.Hour))

	o, inv := f.order(t, f.hosting, "", t0)
	assert.Equal(t, types.USD(200), o.TaxAmount)
	assert.Equal(t, types.USD(1199), o.Total)
	assert.Equal(t, t0.Add(14*24*time.Hour), inv.DueDate)
	assert.Equal(t, "Basic Hosting", inv.LineItems[0].Description)
}

type fixedTax struct{ bps int64 }

func (fixedTax) Name() string { return "fixed-tax" }

func (f fixedTax) TaxRate(context.Context, *customer.Customer) (int64, error) { return f.bps, nil }

func TestCreateOrderTaxCalculatorPlugin(t *testing.T) {
	f := newFixture(t, fulfill.WithPlugin(fixedTax{bps: 0}))

	o, _ := f.order(t, f.hosting, "", t0)
	assert.True(t, o.TaxAmount.IsZero())
	assert.Equal(t, types.USD(999), o.Total)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		items []order.ItemInput
		field string
	}{
		{"no items", nil, "items"},
		{"zero quantity", []order.ItemInput{{ServiceTypeID: f.hosting.ID, Quantity: 0}}, "items[0].quantity"},
		{"negative quantity", []order.ItemInput{
			{ServiceTypeID: f.hosting.ID, Quantity: 1},
			{ServiceTypeID: f.domain.ID, Quantity: -1},
		}, "items[1].quantity"},
		{"missing service type", []order.ItemInput{{Quantity: 1}}, "items[0].service_type_id"},
		{"long domain", []order.ItemInput{
			{ServiceTypeID: f.domain.ID, Quantity: 1, DomainName: strings.Repeat("a", 256)},
		}, "items[0].domain_name"},
		{"line total overflows", []order.ItemInput{{ServiceTypeID: f.hosting.ID, Quantity: 1 << 61}}, "items[0].quantity"},
		{"subtotal overflows", []order.ItemInput{
			{ServiceTypeID: f.hosting.ID, Quantity: math.MaxInt64 / 999},
			{ServiceTypeID: f.hosting.ID, Quantity: 1},
		}, "items"},
		{"total with tax overflows", []order.ItemInput{
			{ServiceTypeID: f.hosting.ID, Quantity: math.MaxInt64 / 1000},
		}, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.engine.CreateOrder(ctx, f.customer.ID, tt.items, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, fulfill.ErrInvalidInput)

			var ve fulfill.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	orders, err := f.engine.ListOrders(ctx, order.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderMaxDomainLengthAccepted(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.CreateOrder(context.Background(), f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.domain.ID, Quantity: 1, DomainName: strings.Repeat("a", 255)},
	}, t0)
	require.NoError(t, err)
}

func TestCreateOrderLookupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.CreateOrder(ctx, id.NewCustomerID(), []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1},
	}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fulfill.ErrCustomerNotFound)
	assert.True(t, fulfill.IsNotFound(err))

	_, _, err = f.engine.CreateOrder(ctx, f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1},
		{ServiceTypeID: id.NewServiceTypeID(), Quantity: 1},
	}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fulfill.ErrServiceTypeNotFound)
	assert.True(t, fulfill.IsNotFound(err))

	orders, err := f.engine.ListOrders(ctx, order.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	invs, err := f.engine.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestCreateOrderRejectsMixedCurrencies(t *testing.T) {
	f := newFixture(t)
	eur := f.addServiceType(t, "Euro Hosting", "euro-hosting", servicetype.TypeHosting, types.EUR(899), servicetype.CycleMonthly)

	_, _, err := f.engine.CreateOrder(context.Background(), f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1},
		{ServiceTypeID: eur.ID, Quantity: 1},
	}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fulfill.ErrInvalidInput)
}

// collidingNumbers hands out a fixed number for the first n calls per
// prefix, then unique ones.
func collidingNumbers(n int) numbering.Func {
	calls := map[string]int{}
	fallback := numbering.NewULID()
	return func(prefix string, now time.Time) string {
		calls[prefix]++
		if calls[prefix] <= n {
			return prefix + "FIXED"
		}
		switch prefix {
		case numbering.OrderPrefix:
			return fallback.Order(now)
		case numbering.InvoicePrefix:
			return fallback.Invoice(now)
		default:
			return fallback.Server(now)
		}
	}
}

func TestCreateOrderRetriesDuplicateNumbers(t *testing.T) {
	f := newFixture(t, fulfill.WithNumbering(collidingNumbers(3)))

	first, _ := f.order(t, f.hosting, "", t0)
	assert.Equal(t, "ORD-FIXED", first.Number)

	// The next two draws collide with the first order; the fourth is fresh.
	second, inv := f.order(t, f.hosting, "", t0)
	assert.NotEqual(t, "ORD-FIXED", second.Number)
	assert.NotEqual(t, "INV-FIXED", inv.Number)

	orders, err := f.engine.ListOrders(context.Background(), order.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestCreateOrderGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t,
		fulfill.WithNumbering(numbering.Func(func(prefix string, _ time.Time) string { return prefix + "SAME" })),
		fulfill.WithNumberRetries(2),
	)

	f.order(t, f.hosting, "", t0)

	_, _, err := f.engine.CreateOrder(context.Background(), f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1},
	}, t0)
	require.Error(t, err)
	assert.True(t, fulfill.IsDuplicateKey(err))

	orders, err := f.engine.ListOrders(context.Background(), order.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCreateOrderEmitsEvent(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))

	f.order(t, f.hosting, "", t0)
	assert.Equal(t, 1, rec.ordersCreated)
}
