// Package observability provides a metrics extension for fulfill that records
// order, billing and provisioning event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/plugin"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                      = (*MetricsExtension)(nil)
	_ plugin.OnInit                      = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated              = (*MetricsExtension)(nil)
	_ plugin.OnOrderPaid                 = (*MetricsExtension)(nil)
	_ plugin.OnOrderStatusChanged        = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid               = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCancelled          = (*MetricsExtension)(nil)
	_ plugin.OnInvoicesOverdue           = (*MetricsExtension)(nil)
	_ plugin.OnRecurringInvoiceGenerated = (*MetricsExtension)(nil)
	_ plugin.OnBillingRunCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnServiceProvisioned        = (*MetricsExtension)(nil)
	_ plugin.OnProvisioningFailed        = (*MetricsExtension)(nil)
	_ plugin.OnServiceStatusChanged      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a fulfill plugin to track order and billing throughput.
type MetricsExtension struct {
	factory MetricFactory

	// Order metrics
	OrderCreated   Counter
	OrderPaid      Counter
	OrderCancelled Counter
	OrderRefunded  Counter
	OrderTotal     Histogram

	// Invoice metrics
	InvoicePaid      Counter
	InvoiceCancelled Counter
	InvoiceOverdue   Counter

	// Billing run metrics
	RecurringInvoiceGenerated Counter
	RecurringInvoiceTotal     Histogram
	BillingRunFailures        Counter
	BillingRunLatency         Histogram

	// Provisioning metrics
	ServiceProvisioned Counter
	ProvisioningFailed Counter
	ServiceSuspended   Counter
	ServiceReactivated Counter
	ServiceCancelled   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		OrderCreated:   factory.Counter("fulfill.order.created"),
		OrderPaid:      factory.Counter("fulfill.order.paid"),
		OrderCancelled: factory.Counter("fulfill.order.cancelled"),
		OrderRefunded:  factory.Counter("fulfill.order.refunded"),
		OrderTotal:     factory.Histogram("fulfill.order.total_amount"),

		InvoicePaid:      factory.Counter("fulfill.invoice.paid"),
		InvoiceCancelled: factory.Counter("fulfill.invoice.cancelled"),
		InvoiceOverdue:   factory.Counter("fulfill.invoice.overdue"),

		RecurringInvoiceGenerated: factory.Counter("fulfill.billing.invoices.generated"),
		RecurringInvoiceTotal:     factory.Histogram("fulfill.billing.invoice.total_amount"),
		BillingRunFailures:        factory.Counter("fulfill.billing.failures"),
		BillingRunLatency:         factory.Histogram("fulfill.billing.run.latency_ms"),

		ServiceProvisioned: factory.Counter("fulfill.service.provisioned"),
		ProvisioningFailed: factory.Counter("fulfill.service.provisioning_failed"),
		ServiceSuspended:   factory.Counter("fulfill.service.suspended"),
		ServiceReactivated: factory.Counter("fulfill.service.reactivated"),
		ServiceCancelled:   factory.Counter("fulfill.service.cancelled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, o *order.Order, _ *invoice.Invoice) error {
	m.OrderCreated.Inc()
	m.OrderTotal.Observe(float64(o.Total.Amount))
	return nil
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (m *MetricsExtension) OnOrderPaid(_ context.Context, _ id.OrderID, _ time.Time) error {
	m.OrderPaid.Inc()
	return nil
}

// OnOrderStatusChanged implements plugin.OnOrderStatusChanged.
func (m *MetricsExtension) OnOrderStatusChanged(_ context.Context, _ id.OrderID, status order.Status) error {
	switch status {
	case order.StatusCancelled:
		m.OrderCancelled.Inc()
	case order.StatusRefunded:
		m.OrderRefunded.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (m *MetricsExtension) OnInvoiceCancelled(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCancelled.Inc()
	return nil
}

// OnInvoicesOverdue implements plugin.OnInvoicesOverdue.
func (m *MetricsExtension) OnInvoicesOverdue(_ context.Context, count int64) error {
	m.InvoiceOverdue.Add(float64(count))
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnRecurringInvoiceGenerated implements plugin.OnRecurringInvoiceGenerated.
func (m *MetricsExtension) OnRecurringInvoiceGenerated(_ context.Context, inv *invoice.Invoice, _ *service.Service) error {
	m.RecurringInvoiceGenerated.Inc()
	m.RecurringInvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnBillingRunCompleted implements plugin.OnBillingRunCompleted.
func (m *MetricsExtension) OnBillingRunCompleted(_ context.Context, _, failed int, elapsed time.Duration) error {
	if failed > 0 {
		m.BillingRunFailures.Add(float64(failed))
	}
	m.BillingRunLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Provisioning hooks
// ──────────────────────────────────────────────────

// OnServiceProvisioned implements plugin.OnServiceProvisioned.
func (m *MetricsExtension) OnServiceProvisioned(_ context.Context, _ *service.Service, _ *servicetype.ServiceType) error {
	m.ServiceProvisioned.Inc()
	return nil
}

// OnProvisioningFailed implements plugin.OnProvisioningFailed.
func (m *MetricsExtension) OnProvisioningFailed(_ context.Context, _ *service.Service, _ error) error {
	m.ProvisioningFailed.Inc()
	return nil
}

// OnServiceStatusChanged implements plugin.OnServiceStatusChanged.
func (m *MetricsExtension) OnServiceStatusChanged(_ context.Context, _ *service.Service, from, to service.Status) error {
	switch {
	case to == service.StatusSuspended:
		m.ServiceSuspended.Inc()
	case to == service.StatusActive && from == service.StatusSuspended:
		m.ServiceReactivated.Inc()
	case to == service.StatusCancelled:
		m.ServiceCancelled.Inc()
	}
	return nil
}
