package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the retention sweep on a schedule",
	Long: `Sweep cleans every project on the sweep.schedule cron schedule: expired
entries are deleted and aged entries are demoted to colder tiers. Editing
sweep.schedule in the config file reschedules a running sweep.

Examples:
  knowledgewing sweep --once
  knowledgewing sweep --metrics-addr :9102`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		sweeper, err := timeline.NewSweeper(a.timeline, a.cfg.Sweep, a.metrics, nil)
		if err != nil {
			return err
		}

		if once {
			report, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, report, func(w io.Writer) error {
				writeSweepReport(w, report)
				return nil
			})
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()

		if viper.ConfigFileUsed() != "" {
			viper.OnConfigChange(sweepConfigHandler(ctx, sweeper))
			viper.WatchConfig()
		}

		if metricsAddr != "" {
			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sweeping on %q (%s), next run at %s. Press Ctrl+C to stop.\n",
			a.cfg.Sweep.Schedule, storageLabel(a.cfg.Storage), sweeper.Next().Format(time.DateTime))
		<-ctx.Done()
		fmt.Fprintln(cmd.OutOrStdout(), "Stopping sweep...")
		return nil
	},
}

// sweepConfigHandler reschedules the sweeper when the config file changes.
// An invalid schedule keeps the previous one.
func sweepConfigHandler(ctx context.Context, sweeper *timeline.Sweeper) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		schedule := config.LoadSweepConfig().Schedule
		if err := sweeper.Reschedule(ctx, schedule); err != nil {
			slog.Warn("config reload: keeping previous sweep schedule", "file", e.Name, "error", err)
			return
		}
		slog.Info("config reload: sweep schedule applied", "schedule", schedule)
	}
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Bool("once", false, "run a single sweep and exit")
	sweepCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
}
