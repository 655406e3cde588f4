package fulfill

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// ServiceError records why one service was not billed in a run. The
// service stays due and is picked up again by the next run.
type ServiceError struct {
	ServiceID id.ServiceID
	Err       error
}

func (e ServiceError) Error() string {
	return fmt.Sprintf("service %s: %v", e.ServiceID, e.Err)
}

func (e ServiceError) Unwrap() error { return e.Err }

// BillingResult summarizes one recurring billing run.
type BillingResult struct {
	Generated int
	Invoices  []*invoice.Invoice
	Errors    []ServiceError
}

// Err aggregates per-service failures, or returns nil.
func (r *BillingResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	var m MultiError
	for _, se := range r.Errors {
		m.Add(se)
	}
	return m
}

// RunRecurringBilling invoices every active service whose next billing
// date is at or before now and advances it by one cycle.
//
// Each service is billed independently: the invoice insert and the date
// advance commit together, guarded by a compare-and-swap on the date the
// run observed. A service that another run billed first is reported as
// ErrBillingClaimLost and left alone. Only a failed selection fails the
// whole run.
func (e *Engine) RunRecurringBilling(ctx context.Context, now time.Time) (*BillingResult, error) {
	ctx, span := e.startSpan(ctx, "RunRecurringBilling")
	defer span.End()

	start := time.Now()

	due, err := e.store.ListDueServices(ctx, now)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("recurring billing: list due services: %w", err)
	}
	span.SetAttributes(attribute.Int("billing.due", len(due)))

	res := &BillingResult{}
	for _, svc := range due {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, ServiceError{ServiceID: svc.ID, Err: ctx.Err()})
			continue
		}

		inv, err := e.billService(ctx, svc, now)
		if err != nil {
			res.Errors = append(res.Errors, ServiceError{ServiceID: svc.ID, Err: err})
			e.logger.Error("recurring billing failed for service",
				"service_id", svc.ID.String(),
				"next_billing_date", svc.NextBillingDate,
				"error", err,
			)
			continue
		}

		res.Invoices = append(res.Invoices, inv)
		res.Generated++
		e.plugins.EmitRecurringInvoiceGenerated(ctx, inv, svc)
	}

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("billing.generated", res.Generated),
		attribute.Int("billing.errors", len(res.Errors)),
	)
	e.plugins.EmitBillingRunCompleted(ctx, res.Generated, len(res.Errors), elapsed)

	e.logger.Info("recurring billing completed",
		"due", len(due),
		"generated", res.Generated,
		"errors", len(res.Errors),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return res, nil
}

func (e *Engine) billService(ctx context.Context, svc *service.Service, now time.Time) (*invoice.Invoice, error) {
	st, err := e.store.GetServiceType(ctx, svc.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("service type %s: %w", svc.ServiceTypeID, err)
	}

	rate := e.taxRateBps
	if calc := e.plugins.TaxCalculator(); calc != nil {
		cust, err := e.store.GetCustomer(ctx, svc.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", svc.CustomerID, err)
		}
		if rate, err = calc.TaxRate(ctx, cust); err != nil {
			return nil, fmt.Errorf("tax rate: %w", err)
		}
	}

	amount := st.Price
	tax, total, err := applyTax(amount, rate)
	if err != nil {
		return nil, fmt.Errorf("pricing %s: %w", st.Slug, err)
	}

	inv := &invoice.Invoice{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewInvoiceID(),
		CustomerID: svc.CustomerID,
		ServiceID:  svc.ID,
		Currency:   amount.Currency,
		Amount:     amount,
		TaxAmount:  tax,
		Total:      total,
		Status:     invoice.StatusPending,
		DueDate:    now.Add(e.paymentTerms).UTC(),
		LineItems: []invoice.LineItem{{
			Description: recurringDescription(st, svc),
			Quantity:    1,
			UnitPrice:   amount,
			Total:       amount,
		}},
		IsRecurring: true,
	}

	expected := svc.NextBillingDate
	newNext := AdvanceBillingDate(st.BillingCycle, expected, now)

	err = e.withNumberRetry(ctx, "invoice", func() error {
		inv.Number = e.numbers.Invoice(now)
		return e.store.BillService(ctx, inv, svc.ID, expected, newNext)
	})
	if err != nil {
		return nil, err
	}

	svc.NextBillingDate = newNext
	svc.ExpiryDate = newNext
	return inv, nil
}

// AdvanceBillingDate returns the next billing date for a service due at
// current and billed at now: one cycle after now, or one cycle after
// current if that would not move the date forward.
func AdvanceBillingDate(cycle servicetype.BillingCycle, current, now time.Time) time.Time {
	next := servicetype.NextBillingDate(cycle, now.UTC())
	if !next.After(current) {
		next = servicetype.NextBillingDate(cycle, current)
	}
	return next
}

func recurringDescription(st *servicetype.ServiceType, svc *service.Service) string {
	desc := st.Name
	if svc.DomainName != "" {
		desc += " - " + svc.DomainName
	}
	return desc + " (Recurring)"
}
