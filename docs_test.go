package fulfill_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/types"
)

// TestDocumentationExamples keeps the package documentation honest.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		e := fulfill.New(memory.New(), fulfill.WithTaxRate(1000), fulfill.WithLogger(quietLogger()))
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer e.Stop(ctx)

		c := &customer.Customer{Name: "Jane Doe", Email: "jane@example.com"}
		if err := e.CreateCustomer(ctx, c, now); err != nil {
			t.Fatal(err)
		}
		hosting := &servicetype.ServiceType{
			Name: "Basic Hosting", Slug: "basic-hosting", Type: servicetype.TypeHosting,
			Price: types.USD(999), BillingCycle: servicetype.CycleMonthly, Active: true,
		}
		if err := e.CreateServiceType(ctx, hosting, now); err != nil {
			t.Fatal(err)
		}

		o, inv, err := e.CreateOrder(ctx, c.ID, []order.ItemInput{
			{ServiceTypeID: hosting.ID, Quantity: 1, DomainName: "example.com"},
		}, now)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := inv.Total.String(), "$10.99"; got != want {
			t.Errorf("invoice total: got %v, want %v", got, want)
		}

		res, err := e.MarkPaid(ctx, o.ID, now)
		if err != nil {
			t.Fatal(err)
		}
		if got := len(res.Services); got != 1 {
			t.Fatalf("services: got %v, want 1", got)
		}
		svc := res.Services[0]
		if got, want := svc.NextBillingDate, now.AddDate(0, 1, 0); !got.Equal(want) {
			t.Errorf("next billing date: got %v, want %v", got, want)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		m1 := types.USD(999)
		if got, want := m1.ApplyRate(1000), types.USD(100); !got.Equal(want) {
			t.Errorf("tax on 9.99: got %v, want %v", got, want)
		}
		if got, want := m1.Add(types.USD(100)).String(), "$10.99"; got != want {
			t.Errorf("total: got %v, want %v", got, want)
		}
		if got, want := m1.Multiply(3).FormatMajor(), "29.97"; got != want {
			t.Errorf("multiply: got %v, want %v", got, want)
		}
		sum, err := types.Sum(types.USD(100), types.USD(250))
		if err != nil {
			t.Fatal(err)
		}
		if want := types.USD(350); !sum.Equal(want) {
			t.Errorf("sum: got %v, want %v", sum, want)
		}
	})
}
