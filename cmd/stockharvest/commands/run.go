package commands

import (
	"errors"
	"log/slog"
	"time"

	"stockharvest/internal/components/chrono"
	"stockharvest/internal/components/serviceutil"
	"stockharvest/internal/components/telemetry"
	"stockharvest/internal/harvest"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh the stalest ticker on every firing of harvest.schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		d := openDeps(ctx)
		defer d.Close()

		if len(d.config.Harvest.Tickers) > 0 {
			err := d.store.TrackTickers(ctx, d.config.Harvest.Tickers, time.Unix(0, 0).UTC())
			if err != nil {
				d.Close()
				serviceutil.Fatal("failed to track configured tickers", err)
			}
		}

		h, cleanup := d.harvester(d.config.Harvest.Products)
		defer cleanup()

		if d.config.Diagnostics.PerfStats {
			go telemetry.InstrumentPerfStats(ctx, 30*time.Second)
		}

		cron := chrono.NewStandardCron(d.tel, d.time.Location())
		err := cron.Cron(d.config.Harvest.Schedule, func() {
			ticker, err := h.Tick(ctx)
			if errors.Is(err, harvest.ErrNothingTracked) {
				return
			}
			if err != nil {
				slog.Warn("tick failed", "ticker", ticker, "err", err)
				return
			}
			slog.Info("tick", "ticker", ticker)
		})
		if err != nil {
			cleanup()
			d.Close()
			serviceutil.Fatal("invalid harvest.schedule", err)
		}

		slog.Info("harvesting", "schedule", d.config.Harvest.Schedule, "products", d.config.Harvest.Products)
		<-ctx.Done()

		slog.Info("waiting for the running tick to finish")
		<-cron.Stop().Done()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
