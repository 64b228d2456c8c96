package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"stockharvest/internal/components/serviceutil"
	"stockharvest/internal/config"
	"stockharvest/internal/harvest"

	"github.com/spf13/cobra"
)

// newRefreshCmd builds a command that refreshes one product, either the
// stalest tracked ticker or every ticker given with --ticker.
func newRefreshCmd(product, short string) *cobra.Command {
	var tickers []string

	cmd := &cobra.Command{
		Use:   product,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			d := openDeps(cmd.Context())
			defer d.Close()

			h, cleanup := d.harvester([]string{product})
			defer cleanup()

			if len(tickers) == 0 {
				ticker, err := h.Tick(cmd.Context())
				if errors.Is(err, harvest.ErrNothingTracked) {
					fmt.Fprintln(os.Stderr, "nothing to refresh, add tickers with the track command")
					return
				}
				if err != nil {
					cleanup()
					d.Close()
					serviceutil.Fatal(fmt.Sprintf("failed to refresh %s", ticker), err)
				}
				slog.Info("refreshed", "ticker", ticker, "product", product)
				return
			}

			failed := h.RefreshAll(cmd.Context(), tickers)
			for ticker, err := range failed {
				slog.Error("refresh failed", "ticker", ticker, "err", err)
			}
			slog.Info("refreshed", "product", product, "ok", len(tickers)-len(failed), "failed", len(failed))
			if len(failed) > 0 {
				cleanup()
				d.Close()
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringSliceVar(&tickers, "ticker", nil, "Refresh these tickers instead of the stalest tracked one.")
	return cmd
}

func init() {
	rootCmd.AddCommand(newRefreshCmd(
		config.ProductRatings,
		"Scrape analyst ratings once, for the stalest tracked ticker or the given ones.",
	))
	rootCmd.AddCommand(newRefreshCmd(
		config.ProductHistory,
		"Download and import price history once, for the stalest tracked ticker or the given ones.",
	))
}
