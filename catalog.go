package fulfill

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ──────────────────────────────────────────────────
// Customers
// ──────────────────────────────────────────────────

// CreateCustomer stores a new customer. Name and email are required.
func (e *Engine) CreateCustomer(ctx context.Context, c *customer.Customer, now time.Time) error {
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}
	if !strings.Contains(c.Email, "@") {
		return ValidationError{Field: "email", Message: "must be an email address"}
	}
	if c.ID.IsNil() {
		c.ID = id.NewCustomerID()
	}
	c.Entity = types.NewEntityAt(now)

	return e.store.CreateCustomer(ctx, c)
}

// GetCustomer retrieves a customer by ID.
func (e *Engine) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return e.store.GetCustomer(ctx, customerID)
}

// ──────────────────────────────────────────────────
// Service types
// ──────────────────────────────────────────────────

// CreateServiceType validates and stores a catalog entry.
func (e *Engine) CreateServiceType(ctx context.Context, st *servicetype.ServiceType, now time.Time) error {
	if strings.TrimSpace(st.Name) == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}
	if !slugPattern.MatchString(st.Slug) {
		return ValidationError{Field: "slug", Message: "must be lowercase words separated by hyphens"}
	}
	if !st.Type.Valid() {
		return ValidationError{Field: "type", Message: fmt.Sprintf("unknown service type %q", st.Type)}
	}
	if !st.BillingCycle.Valid() {
		return ValidationError{Field: "billing_cycle", Message: fmt.Sprintf("unknown billing cycle %q", st.BillingCycle)}
	}
	if st.Price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	if st.Price.Currency == "" {
		return ValidationError{Field: "price", Message: "currency is required"}
	}
	if st.ID.IsNil() {
		st.ID = id.NewServiceTypeID()
	}
	st.Entity = types.NewEntityAt(now)

	return e.store.CreateServiceType(ctx, st)
}

// GetServiceType retrieves a service type by ID.
func (e *Engine) GetServiceType(ctx context.Context, stID id.ServiceTypeID) (*servicetype.ServiceType, error) {
	return e.store.GetServiceType(ctx, stID)
}

// GetServiceTypeBySlug retrieves a service type by slug.
func (e *Engine) GetServiceTypeBySlug(ctx context.Context, slug string) (*servicetype.ServiceType, error) {
	return e.store.GetServiceTypeBySlug(ctx, slug)
}

// ListServiceTypes lists catalog entries.
func (e *Engine) ListServiceTypes(ctx context.Context, opts servicetype.ListOpts) ([]*servicetype.ServiceType, error) {
	return e.store.ListServiceTypes(ctx, opts)
}

// DeleteServiceType removes a catalog entry. Services already sold keep
// their reference; billing reports them as errors until the type returns.
func (e *Engine) DeleteServiceType(ctx context.Context, stID id.ServiceTypeID) error {
	if err := e.store.DeleteServiceType(ctx, stID); err != nil {
		return err
	}
	e.logger.Warn("service type deleted", "service_type_id", stID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetOrder retrieves an order by ID.
func (e *Engine) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// GetOrderByNumber retrieves an order by its ORD- number.
func (e *Engine) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return e.store.GetOrderByNumber(ctx, number)
}

// ListOrders lists orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	return e.store.ListOrders(ctx, opts)
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// GetInvoiceByNumber retrieves an invoice by its INV- number.
func (e *Engine) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return e.store.GetInvoiceByNumber(ctx, number)
}

// ListInvoices lists invoices, newest first.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, opts)
}

// GetService retrieves a service by ID.
func (e *Engine) GetService(ctx context.Context, svcID id.ServiceID) (*service.Service, error) {
	return e.store.GetService(ctx, svcID)
}

// ListServices lists services, newest first.
func (e *Engine) ListServices(ctx context.Context, opts service.ListOpts) ([]*service.Service, error) {
	return e.store.ListServices(ctx, opts)
}
