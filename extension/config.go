package extension

import (
	"time"

	fulfill "github.com/xraph/fulfill"
	"github.com/xraph/fulfill/store/backend"
)

// Config holds the fulfill extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fulfill" or "fulfill" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableMetrics skips registering the metrics plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// TaxRateBps is the flat tax rate in basis points (default: 1000 = 10%).
	TaxRateBps int64 `json:"tax_rate_bps" mapstructure:"tax_rate_bps" yaml:"tax_rate_bps"`

	// PaymentTerms is how long after issue an invoice falls due (default: 720h).
	PaymentTerms time.Duration `json:"payment_terms" mapstructure:"payment_terms" yaml:"payment_terms"`

	// ProvisionTimeout bounds each external provisioning call (default: 30s).
	ProvisionTimeout time.Duration `json:"provision_timeout" mapstructure:"provision_timeout" yaml:"provision_timeout"`

	// NumberRetries is how often a duplicate document number is regenerated (default: 3).
	NumberRetries int `json:"number_retries" mapstructure:"number_retries" yaml:"number_retries"`

	// BillingHorizon is the "due soon" window used by billing statistics (default: 168h).
	BillingHorizon time.Duration `json:"billing_horizon" mapstructure:"billing_horizon" yaml:"billing_horizon"`

	// Webhook configures the HTTP provisioner. Empty URL keeps the no-op provisioner.
	Webhook WebhookConfig `json:"webhook" mapstructure:"webhook" yaml:"webhook"`

	// Scheduler runs recurring billing and the overdue sweep in the background.
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler" yaml:"scheduler"`

	// Store opens a backend by driver name and DSN when no store was passed
	// programmatically and no grove database is configured.
	Store backend.Config `json:"store" mapstructure:"store" yaml:"store"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and constructs
	// the store matching its driver (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// WebhookConfig configures provisioner/webhook.
type WebhookConfig struct {
	URL       string        `json:"url" mapstructure:"url" yaml:"url"`
	Token     string        `json:"token" mapstructure:"token" yaml:"token"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	Retries   int           `json:"retries" mapstructure:"retries" yaml:"retries"`
	RetryWait time.Duration `json:"retry_wait" mapstructure:"retry_wait" yaml:"retry_wait"`
}

// SchedulerConfig configures the background scheduler.
type SchedulerConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval" yaml:"interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TaxRateBps:       fulfill.DefaultTaxRateBps,
		PaymentTerms:     fulfill.DefaultPaymentTerms,
		ProvisionTimeout: fulfill.DefaultProvisionTimeout,
		NumberRetries:    fulfill.DefaultNumberRetries,
		BillingHorizon:   fulfill.DefaultBillingHorizon,
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
		},
	}
}
