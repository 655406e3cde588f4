package fulfill

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// MaxDomainNameLength is the longest domain name accepted on an order item.
const MaxDomainNameLength = 255

// CreateOrder prices the requested items, then persists the order and its
// originating invoice together. Nothing is written when any item fails
// validation or lookup.
func (e *Engine) CreateOrder(ctx context.Context, customerID id.CustomerID, items []order.ItemInput, now time.Time) (*order.Order, *invoice.Invoice, error) {
	ctx, span := e.startSpan(ctx, "CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID.String()),
		attribute.Int("order.items", len(items)),
	)

	o, inv, err := e.createOrder(ctx, customerID, items, now)
	if err != nil {
		recordError(span, err)
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID.String()),
		attribute.String("order.number", o.Number),
		attribute.Int64("order.total", o.Total.Amount),
	)

	e.plugins.EmitOrderCreated(ctx, o, inv)

	e.logger.Info("order created",
		"order_id", o.ID.String(),
		"order_number", o.Number,
		"invoice_number", inv.Number,
		"customer_id", customerID.String(),
		"total", o.Total.String(),
	)

	return o, inv, nil
}

func (e *Engine) createOrder(ctx context.Context, customerID id.CustomerID, items []order.ItemInput, now time.Time) (*order.Order, *invoice.Invoice, error) {
	if err := validateItems(items); err != nil {
		return nil, nil, err
	}

	cust, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("create order: customer %s: %w", customerID, err)
	}

	catalog, err := e.resolveServiceTypes(ctx, items)
	if err != nil {
		return nil, nil, err
	}

	currency := catalog[0].Price.Currency
	lines := make([]order.Item, len(items))
	lineTotals := make([]types.Money, len(items))
	for i, in := range items {
		st := catalog[i]
		if st.Price.Currency != currency {
			return nil, nil, ValidationError{
				Field:   fmt.Sprintf("items[%d].service_type_id", i),
				Message: fmt.Sprintf("priced in %s, order is in %s", st.Price.Currency, currency),
			}
		}
		lineTotal, err := st.Price.CheckedMultiply(in.Quantity)
		if err != nil {
			return nil, nil, ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "line total exceeds the representable amount",
			}
		}
		lineTotals[i] = lineTotal
		lines[i] = order.Item{
			ServiceTypeID: st.ID,
			Name:          st.Name,
			Quantity:      in.Quantity,
			UnitPrice:     st.Price,
			LineTotal:     lineTotal,
			DomainName:    in.DomainName,
		}
	}

	subtotal, err := types.Sum(lineTotals...)
	if err != nil {
		return nil, nil, ValidationError{Field: "items", Message: "subtotal exceeds the representable amount"}
	}
	rate, err := e.taxRate(ctx, cust)
	if err != nil {
		return nil, nil, fmt.Errorf("create order: tax rate: %w", err)
	}
	tax, total, err := applyTax(subtotal, rate)
	if err != nil {
		return nil, nil, ValidationError{Field: "items", Message: "total exceeds the representable amount"}
	}

	o := &order.Order{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewOrderID(),
		CustomerID: customerID,
		Items:      lines,
		Currency:   currency,
		Subtotal:   subtotal,
		TaxAmount:  tax,
		Total:      total,
		Status:     order.StatusPending,
	}

	lineItems := make([]invoice.LineItem, len(lines))
	for i, l := range lines {
		lineItems[i] = invoice.LineItem{
			Description: l.Description(),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.LineTotal,
		}
	}

	inv := &invoice.Invoice{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewInvoiceID(),
		CustomerID: customerID,
		OrderID:    o.ID,
		Currency:   currency,
		Amount:     subtotal,
		TaxAmount:  tax,
		Total:      total,
		Status:     invoice.StatusPending,
		DueDate:    now.Add(e.paymentTerms).UTC(),
		LineItems:  lineItems,
	}

	err = e.withNumberRetry(ctx, "order", func() error {
		o.Number = e.numbers.Order(now)
		inv.Number = e.numbers.Invoice(now)
		return e.store.CreateOrder(ctx, o, inv)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	return o, inv, nil
}

// applyTax returns the tax on amount at bps and the resulting total.
func applyTax(amount types.Money, bps int64) (tax, total types.Money, err error) {
	if tax, err = amount.CheckedApplyRate(bps); err != nil {
		return types.Money{}, types.Money{}, err
	}
	if total, err = amount.CheckedAdd(tax); err != nil {
		return types.Money{}, types.Money{}, err
	}
	return tax, total, nil
}

func validateItems(items []order.ItemInput) error {
	if len(items) == 0 {
		return ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for i, in := range items {
		if in.ServiceTypeID.IsNil() {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].service_type_id", i),
				Message: "is required",
			}
		}
		if in.Quantity < 1 {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be at least 1",
			}
		}
		if len(in.DomainName) > MaxDomainNameLength {
			return ValidationError{
				Field:   fmt.Sprintf("items[%d].domain_name", i),
				Message: fmt.Sprintf("must be at most %d characters", MaxDomainNameLength),
			}
		}
	}
	return nil
}

// resolveServiceTypes looks up each item's service type once, in item order.
func (e *Engine) resolveServiceTypes(ctx context.Context, items []order.ItemInput) ([]*servicetype.ServiceType, error) {
	cache := make(map[string]*servicetype.ServiceType, len(items))
	out := make([]*servicetype.ServiceType, len(items))
	for i, in := range items {
		key := in.ServiceTypeID.String()
		st, ok := cache[key]
		if !ok {
			var err error
			st, err = e.store.GetServiceType(ctx, in.ServiceTypeID)
			if err != nil {
				return nil, fmt.Errorf("create order: items[%d]: service type %s: %w", i, key, err)
			}
			cache[key] = st
		}
		out[i] = st
	}
	return out, nil
}

// taxRate returns the rate in basis points for cust. A registered
// TaxCalculator plugin takes precedence over the configured flat rate.
func (e *Engine) taxRate(ctx context.Context, cust *customer.Customer) (int64, error) {
	if calc := e.plugins.TaxCalculator(); calc != nil {
		return calc.TaxRate(ctx, cust)
	}
	return e.taxRateBps, nil
}

// withNumberRetry runs write until it succeeds, fails with something other
// than a duplicate key, or exhausts the configured retries. write must
// draw fresh document numbers on every call.
func (e *Engine) withNumberRetry(ctx context.Context, kind string, write func() error) error {
	var err error
	for attempt := 0; attempt <= e.numberRetries; attempt++ {
		if err = write(); err == nil || !IsDuplicateKey(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("document number collision, retrying",
			"kind", kind,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return err
}
