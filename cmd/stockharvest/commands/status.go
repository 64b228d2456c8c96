package commands

import (
	"os"

	"stockharvest/internal/components/serviceutil"
	"stockharvest/internal/ratings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusTicker *string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when each tracked ticker was last refreshed, or the stored ratings of one ticker.",
	Run: func(cmd *cobra.Command, args []string) {
		d := openDeps(cmd.Context())
		defer d.Close()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)

		if *statusTicker != "" {
			records, err := d.store.Ratings(cmd.Context(), *statusTicker)
			if err != nil {
				d.Close()
				serviceutil.Fatal("failed to read ratings", err)
			}
			t.AppendHeader(table.Row{"Date", "Analyst", "Firm", "Rating", "Action", "Target", "Upside"})
			for _, r := range records {
				t.AppendRow(table.Row{
					r.Date.String(),
					r.Analyst,
					r.Firm,
					r.Rating,
					r.Action,
					nullable(r.PriceTarget.Valid, r.PriceTarget.Decimal.String()),
					nullable(r.Upside.Valid, r.Upside.Decimal.String()+"%"),
				})
			}
			t.Render()
			return
		}

		progress, err := d.store.Progress(cmd.Context())
		if err != nil {
			d.Close()
			serviceutil.Fatal("failed to read progress", err)
		}
		t.AppendHeader(table.Row{"Ticker", "Last Updated"})
		for _, f := range progress {
			t.AppendRow(table.Row{f.Ticker, f.LastUpdated.Format(ratings.DateLayout)})
		}
		t.AppendFooter(table.Row{"Tracked", len(progress)})
		t.Render()
	},
}

func nullable(valid bool, value string) string {
	if !valid {
		return "-"
	}
	return value
}

func init() {
	statusTicker = statusCmd.Flags().String("ticker", "", "List the stored ratings of this ticker.")
	rootCmd.AddCommand(statusCmd)
}
