package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/fulfill/scheduler"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info("migrations applied", "driver", a.cfg.Store.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newBillCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Invoice every active service that is due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Stop(context.WithoutCancel(ctx))

			res, err := e.RunRecurringBilling(ctx, now)
			if err != nil {
				return err
			}
			for _, inv := range res.Invoices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", inv.Number, inv.ServiceID, inv.Total)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated %d, failed %d\n", res.Generated, len(res.Errors))
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "billing instant in RFC 3339 (default: now)")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark pending invoices past their due date as overdue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Stop(context.WithoutCancel(ctx))

			n, err := e.RunOverdueSweep(ctx, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d overdue\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "sweep instant in RFC 3339 (default: now)")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run billing and the overdue sweep on an interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Stop(context.WithoutCancel(ctx))

			sc := a.cfg.Scheduler
			opts := []scheduler.Option{
				scheduler.WithInterval(sc.Interval),
				scheduler.WithLogger(a.logger),
				scheduler.WithRunOnStart(),
			}
			if sc.RedisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
				defer client.Close()
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("connecting to redis %s: %w", sc.RedisAddr, err)
				}
				opts = append(opts,
					scheduler.WithLocker(scheduler.NewRedisLocker(client, "")),
					scheduler.WithLockKey(sc.LockKey),
					scheduler.WithLockTTL(sc.LockTTL),
				)
			}
			s := scheduler.New(e, opts...)

			if once {
				res, err := s.Tick(ctx)
				if err != nil {
					return err
				}
				if res.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "skipped: lock held elsewhere")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d, failed %d, overdue %d\n",
					res.Billing.Generated, len(res.Billing.Errors), res.Overdue)
				return nil
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print billing statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Stop(context.WithoutCancel(ctx))

			st, err := e.BillingStats(ctx, now)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "reporting instant in RFC 3339 (default: now)")
	return cmd
}
