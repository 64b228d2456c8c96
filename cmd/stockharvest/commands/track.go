package commands

import (
	"fmt"
	"time"

	"stockharvest/internal/components/serviceutil"
	"stockharvest/internal/ratings"

	"github.com/spf13/cobra"
)

var trackSince *string

var trackCmd = &cobra.Command{
	Use:   "track TICKER...",
	Short: "Add tickers to the refresh schedule.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		since, err := time.Parse(ratings.DateLayout, *trackSince)
		if err != nil {
			serviceutil.Fatal("invalid --since", err)
		}

		d := openDeps(cmd.Context())
		defer d.Close()

		err = d.store.TrackTickers(cmd.Context(), args, since)
		if err != nil {
			d.Close()
			serviceutil.Fatal("failed to track tickers", err)
		}
		fmt.Printf("tracking %d ticker(s)\n", len(args))
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack TICKER...",
	Short: "Remove tickers from the refresh schedule, stored data is kept.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		d := openDeps(cmd.Context())
		defer d.Close()

		for _, ticker := range args {
			ok, err := d.store.UntrackTicker(cmd.Context(), ticker)
			if err != nil {
				d.Close()
				serviceutil.Fatal(fmt.Sprintf("failed to untrack %s", ticker), err)
			}
			if !ok {
				fmt.Printf("%s was not tracked\n", ticker)
			}
		}
	},
}

func init() {
	trackSince = trackCmd.Flags().String(
		"since",
		"1970-01-01",
		"Initial freshness (YYYY-MM-DD), the oldest date is refreshed first.",
	)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
}
