package extension

import (
	"time"

	fulfill "github.com/xraph/fulfill"
	"github.com/xraph/fulfill/plugin"
	"github.com/xraph/fulfill/store"
)

// Option configures the fulfill Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a fulfill.Option through to the underlying engine.
func WithEngineOption(opt fulfill.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a fulfill plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, fulfill.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableMetrics skips the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTaxRate sets the flat tax rate in basis points.
func WithTaxRate(bps int64) Option {
	return func(e *Extension) { e.config.TaxRateBps = bps }
}

// WithPaymentTerms sets how long after issue an invoice falls due.
func WithPaymentTerms(d time.Duration) Option {
	return func(e *Extension) { e.config.PaymentTerms = d }
}

// WithWebhook provisions services through an HTTP endpoint.
func WithWebhook(url, token string) Option {
	return func(e *Extension) {
		e.config.Webhook.URL = url
		e.config.Webhook.Token = token
	}
}

// WithScheduler runs billing and the overdue sweep every interval.
func WithScheduler(interval time.Duration) Option {
	return func(e *Extension) {
		e.config.Scheduler.Enabled = true
		e.config.Scheduler.Interval = interval
	}
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension constructs the matching store backend (postgres/sqlite/mongo)
// from the grove driver. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
