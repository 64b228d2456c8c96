package main

import (
	"context"

	"stockharvest/cmd/stockharvest/commands"
	"stockharvest/internal/components/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext(context.Background())
	commands.ExecuteContext(ctx)
}
