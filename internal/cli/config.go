package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/store/backend"
)

// envPrefix marks environment variables that override the config file.
const envPrefix = "FULFILL_"

// Config is the fulfilld configuration file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     backend.Config  `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// EngineConfig mirrors the engine's functional options.
type EngineConfig struct {
	TaxRateBps       int64         `yaml:"tax_rate_bps"`
	PaymentTerms     time.Duration `yaml:"payment_terms"`
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`
	NumberRetries    int           `yaml:"number_retries"`
	BillingHorizon   time.Duration `yaml:"billing_horizon"`
}

// WebhookConfig enables the HTTP provisioner when URL is set.
type WebhookConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RetryWait time.Duration `yaml:"retry_wait"`
}

// SchedulerConfig drives the schedule command. RedisAddr enables locking.
type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	RedisAddr string        `yaml:"redis_addr"`
	LockKey   string        `yaml:"lock_key"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "json"},
		Store: backend.Config{Driver: backend.DriverMemory},
		Engine: EngineConfig{
			TaxRateBps:       fulfill.DefaultTaxRateBps,
			PaymentTerms:     fulfill.DefaultPaymentTerms,
			ProvisionTimeout: fulfill.DefaultProvisionTimeout,
			NumberRetries:    fulfill.DefaultNumberRetries,
			BillingHorizon:   fulfill.DefaultBillingHorizon,
		},
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
			LockKey:  "fulfill:scheduler",
			LockTTL:  10 * time.Minute,
		},
	}
}

// LoadConfig reads path over the defaults and applies FULFILL_ environment
// overrides. A missing file is not an error.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.TaxRateBps < 0 {
		errs = append(errs, errors.New("engine.tax_rate_bps must not be negative"))
	}
	if c.Engine.PaymentTerms < 0 {
		errs = append(errs, errors.New("engine.payment_terms must not be negative"))
	}
	if c.Engine.NumberRetries < 1 {
		errs = append(errs, errors.New("engine.number_retries must be at least 1"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("STORE_DATABASE", &cfg.Store.Database)
	str("WEBHOOK_URL", &cfg.Webhook.URL)
	str("WEBHOOK_TOKEN", &cfg.Webhook.Token)
	str("REDIS_ADDR", &cfg.Scheduler.RedisAddr)

	if v := getenv(envPrefix + "TAX_RATE_BPS"); v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sTAX_RATE_BPS: %w", envPrefix, err)
		}
		cfg.Engine.TaxRateBps = bps
	}
	if v := getenv(envPrefix + "SCHEDULE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULE_INTERVAL: %w", envPrefix, err)
		}
		cfg.Scheduler.Interval = d
	}
	return nil
}
