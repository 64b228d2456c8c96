package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "stockharvest",
	Short: "stockharvest scrapes analyst ratings and price history into a database, one ticker at a time.",
}

func init() {
	configPath = rootCmd.PersistentFlags().String(
		"config",
		"stockharvest.json5",
		"The config file, a <name>.local.json5 next to it overrides its values.",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
