// Package memory implements store.Store with in-process maps. It is the
// default backend for tests and single-process embedding.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps copies of every entity; callers never share memory with it.
type Store struct {
	mu sync.RWMutex

	customers    map[string]*customer.Customer
	serviceTypes map[string]*servicetype.ServiceType
	orders       map[string]*order.Order
	invoices     map[string]*invoice.Invoice
	services     map[string]*service.Service

	// Unique indexes
	slugs          map[string]string
	orderNumbers   map[string]string
	invoiceNumbers map[string]string
}

func New() *Store {
	return &Store{
		customers:      make(map[string]*customer.Customer),
		serviceTypes:   make(map[string]*servicetype.ServiceType),
		orders:         make(map[string]*order.Order),
		invoices:       make(map[string]*invoice.Invoice),
		services:       make(map[string]*service.Service),
		slugs:          make(map[string]string),
		orderNumbers:   make(map[string]string),
		invoiceNumbers: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Customer Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID.String()]; exists {
		return fmt.Errorf("customer %s: %w", c.ID, fulfill.ErrDuplicateKey)
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

func (s *Store) GetCustomer(_ context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[customerID.String()]; ok {
		return cloneCustomer(c), nil
	}
	return nil, fulfill.ErrCustomerNotFound
}

func (s *Store) CountCustomers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.customers)), nil
}

// ──────────────────────────────────────────────────
// ServiceType Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateServiceType(_ context.Context, st *servicetype.ServiceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.serviceTypes[st.ID.String()]; exists {
		return fmt.Errorf("service type %s: %w", st.ID, fulfill.ErrDuplicateKey)
	}
	if _, exists := s.slugs[st.Slug]; exists {
		return fmt.Errorf("service type slug %q: %w", st.Slug, fulfill.ErrDuplicateKey)
	}
	s.serviceTypes[st.ID.String()] = cloneServiceType(st)
	s.slugs[st.Slug] = st.ID.String()
	return nil
}

func (s *Store) GetServiceType(_ context.Context, stID id.ServiceTypeID) (*servicetype.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.serviceTypes[stID.String()]; ok {
		return cloneServiceType(st), nil
	}
	return nil, fulfill.ErrServiceTypeNotFound
}

func (s *Store) GetServiceTypeBySlug(_ context.Context, slug string) (*servicetype.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.slugs[slug]; ok {
		return cloneServiceType(s.serviceTypes[key]), nil
	}
	return nil, fulfill.ErrServiceTypeNotFound
}

func (s *Store) ListServiceTypes(_ context.Context, opts servicetype.ListOpts) ([]*servicetype.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*servicetype.ServiceType, 0)
	for _, st := range s.serviceTypes {
		if opts.ActiveOnly && !st.Active {
			continue
		}
		if opts.Type != "" && st.Type != opts.Type {
			continue
		}
		result = append(result, cloneServiceType(st))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeleteServiceType(_ context.Context, stID id.ServiceTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.serviceTypes[stID.String()]
	if !ok {
		return fulfill.ErrServiceTypeNotFound
	}
	delete(s.slugs, st.Slug)
	delete(s.serviceTypes, stID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Order Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateOrder(_ context.Context, o *order.Order, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every constraint before writing so a rejection leaves no trace.
	if _, exists := s.orders[o.ID.String()]; exists {
		return fmt.Errorf("order %s: %w", o.ID, fulfill.ErrDuplicateKey)
	}
	if _, exists := s.orderNumbers[o.Number]; exists {
		return fmt.Errorf("order number %s: %w", o.Number, fulfill.ErrDuplicateKey)
	}
	if err := s.checkInvoiceUnique(inv); err != nil {
		return err
	}

	s.orders[o.ID.String()] = cloneOrder(o)
	s.orderNumbers[o.Number] = o.ID.String()
	s.putInvoice(inv)
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		return cloneOrder(o), nil
	}
	return nil, fulfill.ErrOrderNotFound
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.orderNumbers[number]; ok {
		return cloneOrder(s.orders[key]), nil
	}
	return nil, fulfill.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, opts order.ListOpts) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if !opts.CustomerID.IsNil() && o.CustomerID.String() != opts.CustomerID.String() {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		result = append(result, cloneOrder(o))
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID id.OrderID, from []order.Status, to order.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID.String()]
	if !ok {
		return fulfill.ErrOrderNotFound
	}
	if !slices.Contains(from, o.Status) {
		return fmt.Errorf("order %s is %s: %w", orderID, o.Status, fulfill.ErrInvalidTransition)
	}
	o.Status = to
	o.Touch(at)
	return nil
}

func (s *Store) SettleOrder(_ context.Context, orderID id.OrderID, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID.String()]
	if !ok {
		return false, fulfill.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return false, nil
	}

	paidAt = paidAt.UTC()
	o.Status = order.StatusPaid
	o.PaidAt = &paidAt
	o.Touch(paidAt)

	for _, inv := range s.invoices {
		if inv.OrderID.String() != orderID.String() || !inv.Status.Open() {
			continue
		}
		markPaid(inv, paidAt)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Invoice Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, fulfill.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.invoiceNumbers[number]; ok {
		return cloneInvoice(s.invoices[key]), nil
	}
	return nil, fulfill.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		if !opts.CustomerID.IsNil() && inv.CustomerID.String() != opts.CustomerID.String() {
			continue
		}
		if !opts.OrderID.IsNil() && inv.OrderID.String() != opts.OrderID.String() {
			continue
		}
		if !opts.ServiceID.IsNil() && inv.ServiceID.String() != opts.ServiceID.String() {
			continue
		}
		if opts.Recurring != nil && inv.IsRecurring != *opts.Recurring {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invID id.InvoiceID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return fulfill.ErrInvoiceNotFound
	}
	if !invoice.CanTransition(inv.Status, invoice.StatusPaid) {
		return fmt.Errorf("invoice %s is %s: %w", invID, inv.Status, fulfill.ErrInvalidTransition)
	}
	markPaid(inv, paidAt.UTC())
	return nil
}

func (s *Store) CancelInvoice(_ context.Context, invID id.InvoiceID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return fulfill.ErrInvoiceNotFound
	}
	if !invoice.CanTransition(inv.Status, invoice.StatusCancelled) {
		return fmt.Errorf("invoice %s is %s: %w", invID, inv.Status, fulfill.ErrInvalidTransition)
	}
	inv.Status = invoice.StatusCancelled
	inv.Touch(at)
	return nil
}

func (s *Store) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, inv := range s.invoices {
		if inv.Status == invoice.StatusPending && inv.DueDate.Before(now) {
			inv.Status = invoice.StatusOverdue
			inv.Touch(now)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Service Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateService(_ context.Context, svc *service.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[svc.ID.String()]; exists {
		return fmt.Errorf("service %s: %w", svc.ID, fulfill.ErrDuplicateKey)
	}
	s.services[svc.ID.String()] = cloneService(svc)
	return nil
}

func (s *Store) GetService(_ context.Context, svcID id.ServiceID) (*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if svc, ok := s.services[svcID.String()]; ok {
		return cloneService(svc), nil
	}
	return nil, fulfill.ErrServiceNotFound
}

func (s *Store) ListServices(_ context.Context, opts service.ListOpts) ([]*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*service.Service, 0)
	for _, svc := range s.services {
		if !opts.CustomerID.IsNil() && svc.CustomerID.String() != opts.CustomerID.String() {
			continue
		}
		if !opts.OrderID.IsNil() && svc.OrderID.String() != opts.OrderID.String() {
			continue
		}
		if opts.Status != "" && svc.Status != opts.Status {
			continue
		}
		if !opts.DueBefore.IsZero() && svc.NextBillingDate.After(opts.DueBefore) {
			continue
		}
		result = append(result, cloneService(svc))
	}
	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueServices(_ context.Context, now time.Time) ([]*service.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*service.Service, 0)
	for _, svc := range s.services {
		if svc.Status == service.StatusActive && !svc.NextBillingDate.After(now) {
			result = append(result, cloneService(svc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextBillingDate.Equal(result[j].NextBillingDate) {
			return result[i].NextBillingDate.Before(result[j].NextBillingDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) BillService(_ context.Context, inv *invoice.Invoice, svcID id.ServiceID, expectedNext, newNext time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[svcID.String()]
	if !ok {
		return fulfill.ErrServiceNotFound
	}
	if svc.Status != service.StatusActive || !svc.NextBillingDate.Equal(expectedNext) {
		return fulfill.ErrBillingClaimLost
	}
	if err := s.checkInvoiceUnique(inv); err != nil {
		return err
	}

	s.putInvoice(inv)
	svc.NextBillingDate = newNext.UTC()
	svc.ExpiryDate = newNext.UTC()
	svc.Touch(inv.CreatedAt)
	return nil
}

func (s *Store) UpdateServiceStatus(_ context.Context, svcID id.ServiceID, from []service.Status, to service.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[svcID.String()]
	if !ok {
		return fulfill.ErrServiceNotFound
	}
	if !slices.Contains(from, svc.Status) {
		return fmt.Errorf("service %s is %s: %w", svcID, svc.Status, fulfill.ErrInvalidTransition)
	}
	svc.Status = to
	svc.Touch(at)
	return nil
}

// ──────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────

func (s *Store) BillingStats(_ context.Context, monthStart, monthEnd, dueBefore time.Time) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.NewStats()
	st.TotalCustomers = int64(len(s.customers))

	for _, inv := range s.invoices {
		switch inv.Status {
		case invoice.StatusPending:
			st.PendingInvoices++
			st.AddOutstanding(inv.Total)
		case invoice.StatusOverdue:
			st.OverdueInvoices++
			st.AddOutstanding(inv.Total)
		case invoice.StatusPaid:
			if inv.PaidAt != nil && !inv.PaidAt.Before(monthStart) && inv.PaidAt.Before(monthEnd) {
				st.AddRevenue(inv.Total)
			}
		}
	}
	for _, o := range s.orders {
		if o.Status == order.StatusPending {
			st.PendingOrders++
		}
	}
	for _, svc := range s.services {
		if svc.Status != service.StatusActive {
			continue
		}
		st.ActiveServices++
		if !svc.NextBillingDate.After(dueBefore) {
			st.ServicesDueBilling++
		}
	}
	return st, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) checkInvoiceUnique(inv *invoice.Invoice) error {
	if _, exists := s.invoices[inv.ID.String()]; exists {
		return fmt.Errorf("invoice %s: %w", inv.ID, fulfill.ErrDuplicateKey)
	}
	if _, exists := s.invoiceNumbers[inv.Number]; exists {
		return fmt.Errorf("invoice number %s: %w", inv.Number, fulfill.ErrDuplicateKey)
	}
	return nil
}

func (s *Store) putInvoice(inv *invoice.Invoice) {
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	s.invoiceNumbers[inv.Number] = inv.ID.String()
}

func markPaid(inv *invoice.Invoice, paidAt time.Time) {
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.Touch(paidAt)
}

func newerFirst(a, b time.Time, aID, bID id.ID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.String() > bID.String()
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	out := *c
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}

func cloneServiceType(st *servicetype.ServiceType) *servicetype.ServiceType {
	out := *st
	out.Features = maps.Clone(st.Features)
	return &out
}

func cloneOrder(o *order.Order) *order.Order {
	out := *o
	out.Items = slices.Clone(o.Items)
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	return &out
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	out.LineItems = slices.Clone(inv.LineItems)
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		out.PaidAt = &t
	}
	return &out
}

func cloneService(svc *service.Service) *service.Service {
	out := *svc
	out.Configuration.Features = maps.Clone(svc.Configuration.Features)
	pd := &out.ProvisioningData
	pd.Extra = maps.Clone(svc.ProvisioningData.Extra)
	if h := svc.ProvisioningData.Hosting; h != nil {
		c := *h
		c.Nameservers = slices.Clone(h.Nameservers)
		pd.Hosting = &c
	}
	if d := svc.ProvisioningData.Domain; d != nil {
		c := *d
		c.Nameservers = slices.Clone(d.Nameservers)
		pd.Domain = &c
	}
	if ssl := svc.ProvisioningData.SSL; ssl != nil {
		c := *ssl
		pd.SSL = &c
	}
	if e := svc.ProvisioningData.Email; e != nil {
		c := *e
		pd.Email = &c
	}
	return &out
}
