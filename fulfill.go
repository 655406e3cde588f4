package fulfill

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/fulfill/numbering"
	"github.com/xraph/fulfill/plugin"
	"github.com/xraph/fulfill/provisioner"
	"github.com/xraph/fulfill/store"
)

// Defaults applied by New.
const (
	DefaultTaxRateBps       int64 = 1000
	DefaultPaymentTerms           = 30 * 24 * time.Hour
	DefaultProvisionTimeout       = 30 * time.Second
	DefaultNumberRetries          = 3
	DefaultBillingHorizon         = 7 * 24 * time.Hour
)

var tracer = otel.Tracer("github.com/xraph/fulfill")

// Engine turns orders into invoices and provisioned services, and keeps
// active services billed. All durable state lives in the store; an Engine
// holds no mutable state of its own and is safe for concurrent use.
type Engine struct {
	store       store.Store
	plugins     *plugin.Registry
	logger      *slog.Logger
	provisioner provisioner.Provisioner
	numbers     numbering.Generator
	random      io.Reader

	// Configuration
	taxRateBps       int64
	paymentTerms     time.Duration
	provisionTimeout time.Duration
	numberRetries    int
	billingHorizon   time.Duration
	defaults         ProvisioningDefaults
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		provisioner:      provisioner.Nop{},
		numbers:          numbering.NewULID(),
		random:           rand.Reader,
		taxRateBps:       DefaultTaxRateBps,
		paymentTerms:     DefaultPaymentTerms,
		provisionTimeout: DefaultProvisionTimeout,
		numberRetries:    DefaultNumberRetries,
		billingHorizon:   DefaultBillingHorizon,
		defaults:         DefaultProvisioningDefaults(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithProvisioner sets the external provisioning capability.
func WithProvisioner(p provisioner.Provisioner) Option {
	return func(e *Engine) {
		e.provisioner = p
	}
}

// WithNumbering sets the order, invoice and server number generator.
func WithNumbering(g numbering.Generator) Option {
	return func(e *Engine) {
		e.numbers = g
	}
}

// WithTaxRate sets the flat tax rate in basis points (1000 = 10%).
func WithTaxRate(bps int64) Option {
	return func(e *Engine) {
		e.taxRateBps = bps
	}
}

// WithPaymentTerms sets how long after issue an invoice falls due.
func WithPaymentTerms(d time.Duration) Option {
	return func(e *Engine) {
		e.paymentTerms = d
	}
}

// WithProvisionTimeout bounds each external provisioning call.
func WithProvisionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.provisionTimeout = d
	}
}

// WithNumberRetries sets how many times a write rejected for a duplicate
// document number is retried with a fresh number.
func WithNumberRetries(n int) Option {
	return func(e *Engine) {
		e.numberRetries = n
	}
}

// WithBillingHorizon sets the look-ahead window for "due soon" statistics.
func WithBillingHorizon(d time.Duration) Option {
	return func(e *Engine) {
		e.billingHorizon = d
	}
}

// WithProvisioningDefaults overrides the platform values written into new
// services.
func WithProvisioningDefaults(d ProvisioningDefaults) Option {
	return func(e *Engine) {
		e.defaults = d
	}
}

// WithRandom sets the source used for generated credentials.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("fulfill started",
		"tax_rate_bps", e.taxRateBps,
		"payment_terms", e.paymentTerms,
		"provision_timeout", e.provisionTimeout,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fulfill."+name)
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
