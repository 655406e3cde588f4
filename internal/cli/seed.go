package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// demoCatalog is the starter catalog loaded by seed.
func demoCatalog() []*servicetype.ServiceType {
	return []*servicetype.ServiceType{
		{
			Name: "Basic Hosting", Slug: "basic-hosting", Type: servicetype.TypeHosting,
			Description: "Perfect for small websites and blogs",
			Price:       types.USD(999), BillingCycle: servicetype.CycleMonthly, Active: true,
			Features: map[string]any{
				"storage": "5GB SSD", "bandwidth": "50GB", "email_accounts": 10, "databases": 2, "ssl_included": true,
			},
		},
		{
			Name: "Professional Hosting", Slug: "professional-hosting", Type: servicetype.TypeHosting,
			Description: "Ideal for business websites and e-commerce",
			Price:       types.USD(1999), BillingCycle: servicetype.CycleMonthly, Active: true,
			Features: map[string]any{
				"storage": "25GB SSD", "bandwidth": "Unlimited", "email_accounts": 50, "databases": 10,
				"ssl_included": true, "backup_included": true,
			},
		},
		{
			Name: ".com Domain", Slug: "com-domain", Type: servicetype.TypeDomain,
			Description: "Register your .com domain",
			Price:       types.USD(1299), BillingCycle: servicetype.CycleYearly, Active: true,
			Features: map[string]any{
				"dns_management": true, "domain_forwarding": true, "privacy_protection": true,
			},
		},
		{
			Name: "SSL Certificate", Slug: "ssl-certificate", Type: servicetype.TypeSSL,
			Description: "Secure your website with SSL encryption",
			Price:       types.USD(2999), BillingCycle: servicetype.CycleYearly, Active: true,
			Features: map[string]any{
				"encryption": "256-bit", "warranty": "$10,000", "browser_compatibility": "99.9%",
			},
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var (
		at        string
		customers int
		paidEvery int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo catalog and sample customers with orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Stop(context.WithoutCancel(ctx))

			catalog, created, err := seedCatalog(ctx, e, now)
			if err != nil {
				return err
			}

			var orders, paid int
			for i := range customers {
				c := &customer.Customer{
					Name:    fmt.Sprintf("Demo Customer %d", i+1),
					Email:   fmt.Sprintf("customer%d@example.com", i+1),
					Company: "Example Ltd",
				}
				if err := e.CreateCustomer(ctx, c, now); err != nil {
					return err
				}

				st := catalog[i%len(catalog)]
				o, _, err := e.CreateOrder(ctx, c.ID, []order.ItemInput{{
					ServiceTypeID: st.ID,
					Quantity:      1,
					DomainName:    fmt.Sprintf("customer%d.example.com", i+1),
				}}, now)
				if err != nil {
					return err
				}
				orders++

				if paidEvery > 0 && i%paidEvery == 0 {
					if _, err := e.MarkPaid(ctx, o.ID, now); err != nil {
						return err
					}
					paid++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "service types created %d, customers %d, orders %d, paid %d\n",
				created, customers, orders, paid)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "creation instant in RFC 3339 (default: now)")
	cmd.Flags().IntVar(&customers, "customers", 20, "number of demo customers")
	cmd.Flags().IntVar(&paidEvery, "paid-every", 2, "mark every nth order paid (0 disables)")
	return cmd
}

// seedCatalog creates the demo service types that are missing and returns
// the full catalog in demo order.
func seedCatalog(ctx context.Context, e *fulfill.Engine, now time.Time) ([]*servicetype.ServiceType, int, error) {
	var (
		out     []*servicetype.ServiceType
		created int
	)
	for _, st := range demoCatalog() {
		existing, err := e.GetServiceTypeBySlug(ctx, st.Slug)
		switch {
		case err == nil:
			out = append(out, existing)
			continue
		case !errors.Is(err, fulfill.ErrServiceTypeNotFound):
			return nil, 0, err
		}
		if err := e.CreateServiceType(ctx, st, now); err != nil {
			return nil, 0, err
		}
		out = append(out, st)
		created++
	}
	return out, created, nil
}
