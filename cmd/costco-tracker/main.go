package main

import (
	"context"

	"github.com/Ropaxyz/CostcoUKTracker/cmd/costco-tracker/commands"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "costco-tracker")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
