// Package cli implements the fulfilld command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/provisioner/webhook"
	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/backend"
)

var (
	version = "dev"
	commit  = "none"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	getenv     func(string) string

	cfg    Config
	logger *slog.Logger
	flush  func()
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}

	cmd := &cobra.Command{
		Use:           "fulfilld",
		Short:         "Order-to-service billing and provisioning",
		Long:          "fulfilld migrates the store, runs recurring billing and the overdue sweep, and reports billing statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.flush != nil {
				a.flush()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "fulfill.yaml", "path to the YAML config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newBillCmd(a))
	cmd.AddCommand(newSweepCmd(a))
	cmd.AddCommand(newScheduleCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newSeedCmd(a))
	return cmd
}

// NewRootCmdForTest returns the root command with a custom environment.
func NewRootCmdForTest(getenv func(string) string) *cobra.Command {
	return newRootCmd(getenv)
}

// Execute runs the command tree against the process environment.
func Execute() error {
	return newRootCmd(os.Getenv).Execute()
}

func (a *app) init() error {
	cfg, err := LoadConfig(a.configPath, a.getenv)
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	a.cfg, a.logger, a.flush = cfg, logger, flush
	return nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	return backend.Open(ctx, a.cfg.Store)
}

// openEngine opens the store, builds the engine and starts it. Callers must
// Stop the engine.
func (a *app) openEngine(ctx context.Context) (*fulfill.Engine, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	ec := a.cfg.Engine
	opts := []fulfill.Option{
		fulfill.WithLogger(a.logger),
		fulfill.WithTaxRate(ec.TaxRateBps),
		fulfill.WithPaymentTerms(ec.PaymentTerms),
		fulfill.WithProvisionTimeout(ec.ProvisionTimeout),
		fulfill.WithNumberRetries(ec.NumberRetries),
		fulfill.WithBillingHorizon(ec.BillingHorizon),
	}
	if wh := a.cfg.Webhook; wh.URL != "" {
		whOpts := []webhook.Option{webhook.WithLogger(a.logger)}
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

	e := fulfill.New(s, opts...)
	if err := e.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return e, nil
}

// parseAt reads the --at flag. Empty means the current time.
func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC 3339: %w", err)
	}
	return t.UTC(), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fulfilld %s (%s)\n", version, commit)
		},
	}
}
