package plugin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/plugin"
)

type recorder struct {
	name     string
	overdue  []int64
	paid     []*invoice.Invoice
	failWith error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnInvoicesOverdue(_ context.Context, count int64) error {
	r.overdue = append(r.overdue, count)
	return r.failWith
}

func (r *recorder) OnInvoicePaid(_ context.Context, inv *invoice.Invoice) error {
	r.paid = append(r.paid, inv)
	return r.failWith
}

type flatTax struct{ bps int64 }

func (flatTax) Name() string { return "flat-tax" }

func (f flatTax) TaxRate(context.Context, *customer.Customer) (int64, error) { return f.bps, nil }

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnInvoicesOverdue(ctx context.Context, _ int64) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&recorder{name: "audit"}))
	require.Error(t, r.Register(&recorder{name: "audit"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("audit"))
	assert.Nil(t, r.Get("missing"))
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))
	require.NoError(t, r.Register(flatTax{bps: 500}))

	ctx := context.Background()
	r.EmitInvoicesOverdue(ctx, 3)
	r.EmitInvoicePaid(ctx, &invoice.Invoice{ID: id.NewInvoiceID()})

	assert.Equal(t, []int64{3}, rec.overdue)
	assert.Len(t, rec.paid, 1)
}

func TestEmitSwallowsPluginErrors(t *testing.T) {
	r := plugin.NewRegistry()
	first := &recorder{name: "first", failWith: errors.New("boom")}
	second := &recorder{name: "second"}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	r.EmitInvoicesOverdue(context.Background(), 1)

	assert.Equal(t, []int64{1}, first.overdue)
	assert.Equal(t, []int64{1}, second.overdue)
}

func TestEmitTimesOutSlowPlugins(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(slowPlugin{}))

	start := time.Now()
	r.EmitInvoicesOverdue(context.Background(), 1)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestTaxCalculatorFirstWins(t *testing.T) {
	r := plugin.NewRegistry()
	assert.Nil(t, r.TaxCalculator())

	require.NoError(t, r.Register(flatTax{bps: 500}))
	calc := r.TaxCalculator()
	require.NotNil(t, calc)

	bps, err := calc.TaxRate(context.Background(), &customer.Customer{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), bps)
}
