// Package plugin provides an extensible plugin system for fulfill.
// Plugins can hook into order, invoice, billing and provisioning events.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *fulfill.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called after an order and its invoice are committed.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, o *order.Order, inv *invoice.Invoice) error
}

// OnOrderPaid is called once when an order settles, before provisioning.
type OnOrderPaid interface {
	Plugin
	OnOrderPaid(ctx context.Context, orderID id.OrderID, paidAt time.Time) error
}

// OnOrderStatusChanged is called for cancellations and refunds.
type OnOrderStatusChanged interface {
	Plugin
	OnOrderStatusChanged(ctx context.Context, orderID id.OrderID, status order.Status) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoicePaid is called when a single invoice is paid directly.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceCancelled is called when an invoice is cancelled.
type OnInvoiceCancelled interface {
	Plugin
	OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicesOverdue is called after an overdue sweep.
type OnInvoicesOverdue interface {
	Plugin
	OnInvoicesOverdue(ctx context.Context, count int64) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnRecurringInvoiceGenerated is called for each invoice a billing run
// commits.
type OnRecurringInvoiceGenerated interface {
	Plugin
	OnRecurringInvoiceGenerated(ctx context.Context, inv *invoice.Invoice, svc *service.Service) error
}

// OnBillingRunCompleted is called once at the end of every billing run.
type OnBillingRunCompleted interface {
	Plugin
	OnBillingRunCompleted(ctx context.Context, generated, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Provisioning hooks
// ──────────────────────────────────────────────────

// OnServiceProvisioned is called after the external provisioning call
// succeeds.
type OnServiceProvisioned interface {
	Plugin
	OnServiceProvisioned(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error
}

// OnProvisioningFailed is called when the external provisioning call
// fails. The service stays committed and active.
type OnProvisioningFailed interface {
	Plugin
	OnProvisioningFailed(ctx context.Context, svc *service.Service, err error) error
}

// OnServiceStatusChanged is called after a suspend, reactivate or cancel.
type OnServiceStatusChanged interface {
	Plugin
	OnServiceStatusChanged(ctx context.Context, svc *service.Service, from, to service.Status) error
}

// ──────────────────────────────────────────────────
// Tax calculators
// ──────────────────────────────────────────────────

// TaxCalculator overrides the engine's flat tax rate for a customer. The
// first registered calculator wins. Rates are in basis points.
type TaxCalculator interface {
	Plugin
	TaxRate(ctx context.Context, c *customer.Customer) (int64, error)
}
