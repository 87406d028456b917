// Package serve provides the long-running scheduled mode.
package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge/internal/cli"
	"github.com/dirbridge/dirbridge/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var noInitialSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled reconciliation until interrupted",
		Long: `Serve runs an initial reconciliation pass, then keeps reconciling on
the configured cron schedule. Prometheus metrics are exposed on the
configured metrics address. SIGINT or SIGTERM stops the scheduler,
waiting for a run in flight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			ctx := cmd.Context()
			logger := logging.Default()

			if !noInitialSync {
				result, err := bridge.Sync(ctx)
				if err != nil {
					// The schedule still starts; a transient source outage
					// should not keep the service down.
					logger.Error().Err(err).Msg("Initial sync failed")
				} else {
					logger.Info().Str("run", result.Summary()).Msg("Initial sync finished")
				}
			}

			if err := bridge.ScheduleOn(ctx); err != nil {
				return err
			}

			metricsSrv := &http.Server{
				Addr:              cfg.General.MetricsAddr,
				Handler:           metricsMux(bridge.Metrics().Handler()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("Metrics server failed")
				}
			}()
			logger.Info().Str("addr", cfg.General.MetricsAddr).Msg("Metrics server listening")

			<-ctx.Done()
			logger.Info().Msg("Shutting down")

			bridge.ScheduleOff()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&noInitialSync, "no-initial-sync", false, "wait for the first scheduled tick instead of syncing at startup")
	return cmd
}

func metricsMux(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
