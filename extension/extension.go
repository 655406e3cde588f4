// Package extension provides the Forge extension adapter for fulfill.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fulfill" or "fulfill" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	fulfill "github.com/xraph/fulfill"
	"github.com/xraph/fulfill/observability"
	"github.com/xraph/fulfill/provisioner/webhook"
	"github.com/xraph/fulfill/scheduler"
	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/backend"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fulfill"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Order-to-service billing and provisioning engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts fulfill as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *fulfill.Engine
	store      store.Store
	engineOpts []fulfill.Option
	useGrove   bool

	scheduler *scheduler.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new fulfill Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *fulfill.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(fapp); err != nil {
		return err
	}

	eng := fulfill.New(e.store, e.buildEngineOpts()...)
	e.engine = eng

	if e.config.Scheduler.Enabled {
		e.scheduler = scheduler.New(eng, scheduler.WithInterval(e.config.Scheduler.Interval))
	}

	return vessel.Provide(fapp.Container(), func() (*fulfill.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("fulfill: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.scheduler != nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			_ = e.scheduler.Run(runCtx) //nolint:errcheck // interval validated in config
		}()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
	}
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fulfill: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks, in order: a programmatic store, a grove.DB from the
// container, the configured backend, or the in-memory store.
func (e *Extension) resolveStore(fapp forge.App) error {
	if e.store != nil {
		return nil
	}

	if e.useGrove || e.config.GroveDatabase != "" {
		var (
			db  *grove.DB
			err error
		)
		if e.config.GroveDatabase != "" {
			db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
		} else {
			db, err = vessel.Inject[*grove.DB](fapp.Container())
		}
		if err != nil {
			return fmt.Errorf("fulfill: resolve grove database %q: %w", e.config.GroveDatabase, err)
		}
		s, err := backend.FromGrove(db)
		if err != nil {
			return err
		}
		e.store = s
		return nil
	}

	s, err := backend.Open(context.Background(), e.config.Store)
	if err != nil {
		return err
	}
	e.store = s
	return nil
}

// buildEngineOpts constructs fulfill.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []fulfill.Option {
	opts := make([]fulfill.Option, 0, len(e.engineOpts)+7)

	opts = append(opts,
		fulfill.WithTaxRate(e.config.TaxRateBps),
		fulfill.WithPaymentTerms(e.config.PaymentTerms),
		fulfill.WithProvisionTimeout(e.config.ProvisionTimeout),
		fulfill.WithNumberRetries(e.config.NumberRetries),
		fulfill.WithBillingHorizon(e.config.BillingHorizon),
	)

	if wh := e.config.Webhook; wh.URL != "" {
		whOpts := []webhook.Option{}
		if wh.Token != "" {
			whOpts = append(whOpts, webhook.WithToken(wh.Token))
		}
		if wh.Timeout > 0 {
			whOpts = append(whOpts, webhook.WithTimeout(wh.Timeout))
		}
		if wh.Retries > 0 {
			whOpts = append(whOpts, webhook.WithRetries(wh.Retries, wh.RetryWait))
		}
		opts = append(opts, fulfill.WithProvisioner(webhook.New(wh.URL, whOpts...)))
	}

	if !e.config.DisableMetrics && e.Metrics() != nil {
		opts = append(opts, fulfill.WithPlugin(observability.NewMetricsExtension(forgeMetrics{e.Metrics()})))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// forgeMetrics adapts forge.Metrics to observability.MetricFactory.
type forgeMetrics struct {
	m forge.Metrics
}

func (f forgeMetrics) Counter(name string) observability.Counter {
	return f.m.Counter(name)
}

func (f forgeMetrics) Histogram(name string) observability.Histogram {
	return f.m.Histogram(name)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fulfill: configuration is required but not found in config files; " +
				"ensure 'extensions.fulfill' or 'fulfill' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("fulfill: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("tax_rate_bps", e.config.TaxRateBps),
		forge.F("payment_terms", e.config.PaymentTerms),
		forge.F("provision_timeout", e.config.ProvisionTimeout),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("webhook", e.config.Webhook.URL != ""),
		forge.F("scheduler", e.config.Scheduler.Enabled),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.fulfill", "fulfill"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("fulfill: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("fulfill: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TaxRateBps == 0 {
		cfg.TaxRateBps = defaults.TaxRateBps
	}
	if cfg.PaymentTerms == 0 {
		cfg.PaymentTerms = defaults.PaymentTerms
	}
	if cfg.ProvisionTimeout == 0 {
		cfg.ProvisionTimeout = defaults.ProvisionTimeout
	}
	if cfg.NumberRetries == 0 {
		cfg.NumberRetries = defaults.NumberRetries
	}
	if cfg.BillingHorizon == 0 {
		cfg.BillingHorizon = defaults.BillingHorizon
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = defaults.Scheduler.Interval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableMetrics {
		yamlConfig.DisableMetrics = true
	}
	if programmaticConfig.Scheduler.Enabled {
		yamlConfig.Scheduler.Enabled = true
	}

	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.Webhook.URL == "" {
		yamlConfig.Webhook = programmaticConfig.Webhook
	}

	if yamlConfig.TaxRateBps == 0 {
		yamlConfig.TaxRateBps = programmaticConfig.TaxRateBps
	}
	if yamlConfig.PaymentTerms == 0 {
		yamlConfig.PaymentTerms = programmaticConfig.PaymentTerms
	}
	if yamlConfig.ProvisionTimeout == 0 {
		yamlConfig.ProvisionTimeout = programmaticConfig.ProvisionTimeout
	}
	if yamlConfig.NumberRetries == 0 {
		yamlConfig.NumberRetries = programmaticConfig.NumberRetries
	}
	if yamlConfig.BillingHorizon == 0 {
		yamlConfig.BillingHorizon = programmaticConfig.BillingHorizon
	}
	if yamlConfig.Scheduler.Interval == 0 {
		yamlConfig.Scheduler.Interval = programmaticConfig.Scheduler.Interval
	}

	return mergeWithDefaults(yamlConfig)
}
