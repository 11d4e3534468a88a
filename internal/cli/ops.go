package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
	"github.com/imrishuroy/go-loyalty-ledger/internal/scheduler"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := map[string]string{"status": "ok", "driver": a.Store.Dialect().String()}
			return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
				printf(w, "schema ready (%s)\n", res["driver"])
			})
		},
	}
}

type relayResult struct {
	outbox.Stats
	Pending   int `json:"pending"`
	DeadTotal int `json:"dead_total"`
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(opts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish one batch of pending outbox messages",
		Long: `Publish one batch of pending outbox messages to their sinks.

Discount requests go to DISCOUNT_QUEUE_URL, audit events to the Kafka topic.
Kinds without a configured sink are left pending. Use "serve" to relay
continuously.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			relay, err := a.Relay()
			if err != nil {
				return err
			}
			stats, err := relay.RunOnce(ctx)
			if err != nil {
				return err
			}

			res := relayResult{Stats: stats}
			if res.Pending, err = outbox.CountByStatus(ctx, a.Store, outbox.Kind(kind), outbox.StatusPending); err != nil {
				return err
			}
			if res.DeadTotal, err = outbox.CountByStatus(ctx, a.Store, outbox.Kind(kind), outbox.StatusDead); err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
				printf(w, "sent=%d failed=%d dead=%d pending=%d dead_total=%d\n",
					stats.Sent, stats.Failed, stats.Dead, res.Pending, res.DeadTotal)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "count only this message kind (e.g. discount.provision)")
	return cmd
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate progress whose rolling window has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Ledger.RefreshExpired(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, map[string]int{"refreshed": n}, func(w io.Writer) {
				printf(w, "refreshed %d rewards\n", n)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum rewards to refresh")
	return cmd
}

// NewServeCommand creates the serve command, which runs the relay and the
// expiry sweep on their intervals until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the outbox relay and expiry sweep until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			relay, err := a.Relay()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := scheduler.New(a.Logger, a.Jobs(relay)...)
			if err := s.Start(ctx); err != nil {
				return err
			}
			a.Logger.Info("scheduler running", "relay_interval", a.Config.RelayInterval, "sweep_interval", a.Config.SweepInterval)

			<-ctx.Done()
			a.Logger.Info("shutting down")
			s.Stop()
			if err := ctx.Err(); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}
