// Package audithook bridges fulfill lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/plugin"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                      = (*Extension)(nil)
	_ plugin.OnOrderCreated              = (*Extension)(nil)
	_ plugin.OnOrderPaid                 = (*Extension)(nil)
	_ plugin.OnOrderStatusChanged        = (*Extension)(nil)
	_ plugin.OnInvoicePaid               = (*Extension)(nil)
	_ plugin.OnInvoiceCancelled          = (*Extension)(nil)
	_ plugin.OnInvoicesOverdue           = (*Extension)(nil)
	_ plugin.OnRecurringInvoiceGenerated = (*Extension)(nil)
	_ plugin.OnBillingRunCompleted       = (*Extension)(nil)
	_ plugin.OnServiceProvisioned        = (*Extension)(nil)
	_ plugin.OnProvisioningFailed        = (*Extension)(nil)
	_ plugin.OnServiceStatusChanged      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges fulfill lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, o *order.Order, inv *invoice.Invoice) error {
	return e.record(ctx, ActionOrderCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryOrders, nil,
		"order_number", o.Number,
		"customer_id", o.CustomerID.String(),
		"invoice_number", inv.Number,
		"items", len(o.Items),
		"total", o.Total.Amount,
		"currency", o.Currency,
	)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (e *Extension) OnOrderPaid(ctx context.Context, orderID id.OrderID, paidAt time.Time) error {
	return e.record(ctx, ActionOrderPaid, SeverityInfo, OutcomeSuccess,
		ResourceOrder, orderID.String(), CategoryPayment, nil,
		"paid_at", paidAt,
	)
}

// OnOrderStatusChanged implements plugin.OnOrderStatusChanged.
func (e *Extension) OnOrderStatusChanged(ctx context.Context, orderID id.OrderID, status order.Status) error {
	action := ActionOrderCancelled
	severity := SeverityInfo
	if status == order.StatusRefunded {
		action = ActionOrderRefunded
		severity = SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceOrder, orderID.String(), CategoryOrders, nil,
		"status", string(status),
	)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"invoice_number", inv.Number,
		"total", inv.Total.Amount,
		"currency", inv.Currency,
		"recurring", inv.IsRecurring,
	)
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (e *Extension) OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCancelled, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"invoice_number", inv.Number,
	)
}

// OnInvoicesOverdue implements plugin.OnInvoicesOverdue.
func (e *Extension) OnInvoicesOverdue(ctx context.Context, count int64) error {
	if count == 0 {
		return nil
	}
	return e.record(ctx, ActionInvoicesOverdue, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, "", CategoryBilling, nil,
		"count", count,
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnRecurringInvoiceGenerated implements plugin.OnRecurringInvoiceGenerated.
func (e *Extension) OnRecurringInvoiceGenerated(ctx context.Context, inv *invoice.Invoice, svc *service.Service) error {
	return e.record(ctx, ActionRecurringInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"invoice_number", inv.Number,
		"service_id", svc.ID.String(),
		"next_billing_date", svc.NextBillingDate,
		"total", inv.Total.Amount,
	)
}

// OnBillingRunCompleted implements plugin.OnBillingRunCompleted.
func (e *Extension) OnBillingRunCompleted(ctx context.Context, generated, failed int, elapsed time.Duration) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if failed > 0 {
		outcome, severity = OutcomePartial, SeverityError
	}
	return e.record(ctx, ActionBillingRunCompleted, severity, outcome,
		ResourceBilling, "", CategoryBilling, nil,
		"generated", generated,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Service hooks
// ──────────────────────────────────────────────────

// OnServiceProvisioned implements plugin.OnServiceProvisioned.
func (e *Extension) OnServiceProvisioned(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error {
	return e.record(ctx, ActionServiceProvisioned, SeverityInfo, OutcomeSuccess,
		ResourceService, svc.ID.String(), CategoryProvisioning, nil,
		"service_type", st.Slug,
		"domain_name", svc.DomainName,
		"server_id", svc.ProvisioningData.ServerID,
	)
}

// OnProvisioningFailed implements plugin.OnProvisioningFailed.
func (e *Extension) OnProvisioningFailed(ctx context.Context, svc *service.Service, err error) error {
	return e.record(ctx, ActionProvisioningFailed, SeverityCritical, OutcomeFailure,
		ResourceService, svc.ID.String(), CategoryProvisioning, err,
		"domain_name", svc.DomainName,
	)
}

// OnServiceStatusChanged implements plugin.OnServiceStatusChanged.
func (e *Extension) OnServiceStatusChanged(ctx context.Context, svc *service.Service, from, to service.Status) error {
	var action string
	severity := SeverityInfo
	switch to {
	case service.StatusSuspended:
		action, severity = ActionServiceSuspended, SeverityWarning
	case service.StatusActive:
		action = ActionServiceReactivated
	case service.StatusCancelled:
		action, severity = ActionServiceCancelled, SeverityWarning
	default:
		return nil
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceService, svc.ID.String(), CategoryProvisioning, nil,
		"from", string(from),
		"to", string(to),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
