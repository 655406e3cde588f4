package fulfill

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
)

// ItemError records why one order item could not be provisioned.
type ItemError struct {
	Index         int
	ServiceTypeID id.ServiceTypeID
	Err           error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.ServiceTypeID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// FulfillmentResult reports what a settlement provisioned. Item failures
// do not undo the settlement.
type FulfillmentResult struct {
	OrderID     id.OrderID
	Provisioned int
	Services    []*service.Service
	Errors      []ItemError
}

// Err aggregates item failures, or returns nil when every item was
// provisioned.
func (r *FulfillmentResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	var m MultiError
	for _, ie := range r.Errors {
		m.Add(ie)
	}
	return m
}

// MarkPaid settles a pending order and provisions one service per item.
//
// Settlement is atomic: the order becomes paid and its pending or overdue
// invoices become paid together. Provisioning runs afterwards, item by
// item, and failures are collected in the result instead of aborting.
// Calling MarkPaid on an already paid order does nothing.
func (e *Engine) MarkPaid(ctx context.Context, orderID id.OrderID, now time.Time) (*FulfillmentResult, error) {
	ctx, span := e.startSpan(ctx, "MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	res, err := e.markPaid(ctx, orderID, now)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("fulfillment.provisioned", res.Provisioned),
		attribute.Int("fulfillment.errors", len(res.Errors)),
	)
	return res, nil
}

func (e *Engine) markPaid(ctx context.Context, orderID id.OrderID, now time.Time) (*FulfillmentResult, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}

	res := &FulfillmentResult{OrderID: orderID}

	switch o.Status {
	case order.StatusPaid:
		return res, nil
	case order.StatusPending:
	default:
		return nil, fmt.Errorf("mark paid: order %s is %s: %w", orderID, o.Status, ErrInvalidTransition)
	}

	settled, err := e.store.SettleOrder(ctx, orderID, now)
	if err != nil {
		return nil, fmt.Errorf("mark paid: settle: %w", err)
	}
	if !settled {
		// Lost a race: someone else moved the order out of pending.
		current, err := e.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("mark paid: %w", err)
		}
		if current.Status == order.StatusPaid {
			return res, nil
		}
		return nil, fmt.Errorf("mark paid: order %s is %s: %w", orderID, current.Status, ErrInvalidTransition)
	}

	e.logger.Info("order paid",
		"order_id", orderID.String(),
		"order_number", o.Number,
		"items", len(o.Items),
	)
	e.plugins.EmitOrderPaid(ctx, orderID, now)

	for i, item := range o.Items {
		st, err := e.store.GetServiceType(ctx, item.ServiceTypeID)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Index: i, ServiceTypeID: item.ServiceTypeID, Err: err})
			e.logger.Error("cannot provision order item",
				"order_id", orderID.String(),
				"item", i,
				"service_type_id", item.ServiceTypeID.String(),
				"error", err,
			)
			continue
		}

		svc, err := e.Provision(ctx, o.CustomerID, orderID, st, item, now)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Index: i, ServiceTypeID: item.ServiceTypeID, Err: err})
			e.logger.Error("cannot provision order item",
				"order_id", orderID.String(),
				"item", i,
				"service_type_id", item.ServiceTypeID.String(),
				"error", err,
			)
			continue
		}

		res.Services = append(res.Services, svc)
		res.Provisioned++
	}

	return res, nil
}

// SetOrderStatus applies an administrative status change. Paid routes
// through MarkPaid. Cancelled is allowed from pending or paid and refunded
// from paid; both are plain status writes. Orders never return to pending.
func (e *Engine) SetOrderStatus(ctx context.Context, orderID id.OrderID, status order.Status, now time.Time) (*FulfillmentResult, error) {
	if !status.Valid() {
		return nil, ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", status)}
	}

	var from []order.Status
	switch status {
	case order.StatusPaid:
		return e.MarkPaid(ctx, orderID, now)
	case order.StatusCancelled:
		from = []order.Status{order.StatusPending, order.StatusPaid}
	case order.StatusRefunded:
		from = []order.Status{order.StatusPaid}
	default:
		return nil, fmt.Errorf("set order status: %s: %w", status, ErrInvalidTransition)
	}

	ctx, span := e.startSpan(ctx, "SetOrderStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("order.status", string(status)),
	)

	if err := e.store.UpdateOrderStatus(ctx, orderID, from, status, now); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("set order status: %w", err)
	}

	e.plugins.EmitOrderStatusChanged(ctx, orderID, status)
	e.logger.Info("order status changed",
		"order_id", orderID.String(),
		"status", string(status),
	)

	return &FulfillmentResult{OrderID: orderID}, nil
}

// PayInvoice records payment of a single invoice. Paying an order's
// invoice settles the order too and returns the provisioning result;
// paying a recurring invoice returns an empty result.
func (e *Engine) PayInvoice(ctx context.Context, invoiceID id.InvoiceID, now time.Time) (*FulfillmentResult, error) {
	ctx, span := e.startSpan(ctx, "PayInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID.String()))

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("pay invoice: %w", err)
	}

	if !inv.OrderID.IsNil() {
		o, err := e.store.GetOrder(ctx, inv.OrderID)
		if err != nil {
			recordError(span, err)
			return nil, fmt.Errorf("pay invoice: %w", err)
		}
		if o.Status != order.StatusPending && o.Status != order.StatusPaid {
			err = fmt.Errorf("pay invoice: order %s is %s: %w", o.ID, o.Status, ErrInvalidTransition)
			recordError(span, err)
			return nil, err
		}
	}

	if err := e.store.MarkInvoicePaid(ctx, invoiceID, now); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("pay invoice: %w", err)
	}

	paidAt := now.UTC()
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	e.plugins.EmitInvoicePaid(ctx, inv)
	e.logger.Info("invoice paid",
		"invoice_id", invoiceID.String(),
		"invoice_number", inv.Number,
		"recurring", inv.IsRecurring,
	)

	if inv.OrderID.IsNil() {
		return &FulfillmentResult{}, nil
	}
	return e.MarkPaid(ctx, inv.OrderID, now)
}

// CancelInvoice cancels a pending or overdue invoice.
func (e *Engine) CancelInvoice(ctx context.Context, invoiceID id.InvoiceID, now time.Time) error {
	ctx, span := e.startSpan(ctx, "CancelInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID.String()))

	if err := e.store.CancelInvoice(ctx, invoiceID, now); err != nil {
		recordError(span, err)
		return fmt.Errorf("cancel invoice: %w", err)
	}

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("cancel invoice: %w", err)
	}

	e.plugins.EmitInvoiceCancelled(ctx, inv)
	e.logger.Info("invoice cancelled",
		"invoice_id", invoiceID.String(),
		"invoice_number", inv.Number,
	)
	return nil
}
