package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	fulfill "github.com/xraph/fulfill"
	"github.com/xraph/fulfill/store/backend"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{TaxRateBps: 2000})

	assert.Equal(t, int64(2000), cfg.TaxRateBps)
	assert.Equal(t, fulfill.DefaultPaymentTerms, cfg.PaymentTerms)
	assert.Equal(t, fulfill.DefaultProvisionTimeout, cfg.ProvisionTimeout)
	assert.Equal(t, fulfill.DefaultNumberRetries, cfg.NumberRetries)
	assert.Equal(t, fulfill.DefaultBillingHorizon, cfg.BillingHorizon)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{
		TaxRateBps: 500,
		Store:      backend.Config{Driver: "postgres", DSN: "postgres://file"},
	}
	programmatic := Config{
		TaxRateBps:     1500,
		PaymentTerms:   14 * 24 * time.Hour,
		DisableMetrics: true,
		Store:          backend.Config{Driver: "sqlite", DSN: "file:prog.db"},
		Webhook:        WebhookConfig{URL: "https://provision.example.com", Token: "secret"},
		Scheduler:      SchedulerConfig{Enabled: true, Interval: 15 * time.Minute},
	}

	cfg := mergeConfigurations(file, programmatic)

	assert.Equal(t, int64(500), cfg.TaxRateBps)
	assert.Equal(t, 14*24*time.Hour, cfg.PaymentTerms)
	assert.True(t, cfg.DisableMetrics)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://provision.example.com", cfg.Webhook.URL)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, fulfill.DefaultNumberRetries, cfg.NumberRetries)
}

func TestOptionsPopulateConfig(t *testing.T) {
	e := New(
		WithTaxRate(750),
		WithPaymentTerms(7*24*time.Hour),
		WithWebhook("https://provision.example.com", "tok"),
		WithScheduler(time.Minute),
		WithGroveDatabase("billing"),
		WithDisableMigrate(),
	)

	assert.True(t, e.useGrove)
	assert.Equal(t, int64(750), e.config.TaxRateBps)
	assert.Equal(t, "billing", e.config.GroveDatabase)
	assert.Equal(t, 7*24*time.Hour, e.config.PaymentTerms)
	assert.Equal(t, "tok", e.config.Webhook.Token)
	assert.True(t, e.config.Scheduler.Enabled)
	assert.True(t, e.config.DisableMigrate)
	assert.Nil(t, e.Engine())
}
