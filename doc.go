// Package fulfill is an order-to-service engine for hosting providers.
//
// It covers the money path from a customer order to recurring revenue:
//
//   - Orders priced from the service catalog, taxed and invoiced atomically
//   - Settlement of an order and its invoices in one transaction
//   - Provisioning of one service per order item with typed payloads
//   - Recurring billing that advances services one cycle per run
//   - An overdue sweep over unpaid invoices
//
// Fulfill is a library. Import it into your application, pick a store and
// drive it from your own handlers or the bundled scheduler.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/fulfill"
//	    "github.com/xraph/fulfill/store/memory"
//	)
//
//	e := fulfill.New(memory.New(), fulfill.WithTaxRate(1000))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop(ctx)
//
//	o, inv, err := e.CreateOrder(ctx, customerID, []order.ItemInput{
//	    {ServiceTypeID: hostingID, Quantity: 1, DomainName: "example.com"},
//	}, time.Now())
//
//	res, err := e.MarkPaid(ctx, o.ID, time.Now())
//
// # Time
//
// Every entry point takes the current time explicitly. The engine never
// reads the wall clock, which keeps billing runs reproducible and lets
// tests move through months of cycles deterministically.
//
// # Money
//
// All monetary calculations use integer minor units. Tax is computed in
// basis points and rounded half away from zero, so 9.99 at 10% is 1.00.
//
// # Concurrency
//
// The engine keeps no mutable state. Overlapping billing runs are safe
// because each service is advanced with a compare-and-swap on its next
// billing date inside the same transaction that inserts the invoice.
// External provisioning calls never run inside a transaction.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	cust_01h2xcejqtf2nbrexx3vqjhp41   // Customer ID
//	ord_01h2xcejqtf2nbrexx3vqjhp41    // Order ID
//	svc_01h455vb4pex5vsknk084sn02q    // Service ID
package fulfill
