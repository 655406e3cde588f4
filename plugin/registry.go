package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Interfaces are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                      []OnInit
	onShutdown                  []OnShutdown
	onOrderCreated              []OnOrderCreated
	onOrderPaid                 []OnOrderPaid
	onOrderStatusChanged        []OnOrderStatusChanged
	onInvoicePaid               []OnInvoicePaid
	onInvoiceCancelled          []OnInvoiceCancelled
	onInvoicesOverdue           []OnInvoicesOverdue
	onRecurringInvoiceGenerated []OnRecurringInvoiceGenerated
	onBillingRunCompleted       []OnBillingRunCompleted
	onServiceProvisioned        []OnServiceProvisioned
	onProvisioningFailed        []OnProvisioningFailed
	onServiceStatusChanged      []OnServiceStatusChanged
	taxCalculators              []TaxCalculator
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnOrderCreated); ok {
		r.onOrderCreated = append(r.onOrderCreated, v)
	}
	if v, ok := p.(OnOrderPaid); ok {
		r.onOrderPaid = append(r.onOrderPaid, v)
	}
	if v, ok := p.(OnOrderStatusChanged); ok {
		r.onOrderStatusChanged = append(r.onOrderStatusChanged, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceCancelled); ok {
		r.onInvoiceCancelled = append(r.onInvoiceCancelled, v)
	}
	if v, ok := p.(OnInvoicesOverdue); ok {
		r.onInvoicesOverdue = append(r.onInvoicesOverdue, v)
	}
	if v, ok := p.(OnRecurringInvoiceGenerated); ok {
		r.onRecurringInvoiceGenerated = append(r.onRecurringInvoiceGenerated, v)
	}
	if v, ok := p.(OnBillingRunCompleted); ok {
		r.onBillingRunCompleted = append(r.onBillingRunCompleted, v)
	}
	if v, ok := p.(OnServiceProvisioned); ok {
		r.onServiceProvisioned = append(r.onServiceProvisioned, v)
	}
	if v, ok := p.(OnProvisioningFailed); ok {
		r.onProvisioningFailed = append(r.onProvisioningFailed, v)
	}
	if v, ok := p.(OnServiceStatusChanged); ok {
		r.onServiceStatusChanged = append(r.onServiceStatusChanged, v)
	}
	if v, ok := p.(TaxCalculator); ok {
		r.taxCalculators = append(r.taxCalculators, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnOrderCreated", reflect.TypeFor[OnOrderCreated]()},
	{"OnOrderPaid", reflect.TypeFor[OnOrderPaid]()},
	{"OnOrderStatusChanged", reflect.TypeFor[OnOrderStatusChanged]()},
	{"OnInvoicePaid", reflect.TypeFor[OnInvoicePaid]()},
	{"OnInvoiceCancelled", reflect.TypeFor[OnInvoiceCancelled]()},
	{"OnInvoicesOverdue", reflect.TypeFor[OnInvoicesOverdue]()},
	{"OnRecurringInvoiceGenerated", reflect.TypeFor[OnRecurringInvoiceGenerated]()},
	{"OnBillingRunCompleted", reflect.TypeFor[OnBillingRunCompleted]()},
	{"OnServiceProvisioned", reflect.TypeFor[OnServiceProvisioned]()},
	{"OnProvisioningFailed", reflect.TypeFor[OnProvisioningFailed]()},
	{"OnServiceStatusChanged", reflect.TypeFor[OnServiceStatusChanged]()},
	{"TaxCalculator", reflect.TypeFor[TaxCalculator]()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitOrderCreated(ctx context.Context, o *order.Order, inv *invoice.Invoice) {
	emit(ctx, r, "OnOrderCreated", func() []OnOrderCreated { return r.onOrderCreated }, func(p OnOrderCreated) error {
		return p.OnOrderCreated(ctx, o, inv)
	})
}

func (r *Registry) EmitOrderPaid(ctx context.Context, orderID id.OrderID, paidAt time.Time) {
	emit(ctx, r, "OnOrderPaid", func() []OnOrderPaid { return r.onOrderPaid }, func(p OnOrderPaid) error {
		return p.OnOrderPaid(ctx, orderID, paidAt)
	})
}

func (r *Registry) EmitOrderStatusChanged(ctx context.Context, orderID id.OrderID, status order.Status) {
	emit(ctx, r, "OnOrderStatusChanged", func() []OnOrderStatusChanged { return r.onOrderStatusChanged }, func(p OnOrderStatusChanged) error {
		return p.OnOrderStatusChanged(ctx, orderID, status)
	})
}

func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoicePaid", func() []OnInvoicePaid { return r.onInvoicePaid }, func(p OnInvoicePaid) error {
		return p.OnInvoicePaid(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceCancelled", func() []OnInvoiceCancelled { return r.onInvoiceCancelled }, func(p OnInvoiceCancelled) error {
		return p.OnInvoiceCancelled(ctx, inv)
	})
}

func (r *Registry) EmitInvoicesOverdue(ctx context.Context, count int64) {
	emit(ctx, r, "OnInvoicesOverdue", func() []OnInvoicesOverdue { return r.onInvoicesOverdue }, func(p OnInvoicesOverdue) error {
		return p.OnInvoicesOverdue(ctx, count)
	})
}

func (r *Registry) EmitRecurringInvoiceGenerated(ctx context.Context, inv *invoice.Invoice, svc *service.Service) {
	emit(ctx, r, "OnRecurringInvoiceGenerated", func() []OnRecurringInvoiceGenerated { return r.onRecurringInvoiceGenerated }, func(p OnRecurringInvoiceGenerated) error {
		return p.OnRecurringInvoiceGenerated(ctx, inv, svc)
	})
}

func (r *Registry) EmitBillingRunCompleted(ctx context.Context, generated, failed int, elapsed time.Duration) {
	emit(ctx, r, "OnBillingRunCompleted", func() []OnBillingRunCompleted { return r.onBillingRunCompleted }, func(p OnBillingRunCompleted) error {
		return p.OnBillingRunCompleted(ctx, generated, failed, elapsed)
	})
}

func (r *Registry) EmitServiceProvisioned(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) {
	emit(ctx, r, "OnServiceProvisioned", func() []OnServiceProvisioned { return r.onServiceProvisioned }, func(p OnServiceProvisioned) error {
		return p.OnServiceProvisioned(ctx, svc, st)
	})
}

func (r *Registry) EmitProvisioningFailed(ctx context.Context, svc *service.Service, err error) {
	emit(ctx, r, "OnProvisioningFailed", func() []OnProvisioningFailed { return r.onProvisioningFailed }, func(p OnProvisioningFailed) error {
		return p.OnProvisioningFailed(ctx, svc, err)
	})
}

func (r *Registry) EmitServiceStatusChanged(ctx context.Context, svc *service.Service, from, to service.Status) {
	emit(ctx, r, "OnServiceStatusChanged", func() []OnServiceStatusChanged { return r.onServiceStatusChanged }, func(p OnServiceStatusChanged) error {
		return p.OnServiceStatusChanged(ctx, svc, from, to)
	})
}

// TaxCalculator returns the first registered tax calculator, or nil.
func (r *Registry) TaxCalculator() TaxCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.taxCalculators) == 0 {
		return nil
	}
	return r.taxCalculators[0]
}

// emit dispatches one hook to every plugin in list. Failures are logged
// and never reach the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block billing or provisioning.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
