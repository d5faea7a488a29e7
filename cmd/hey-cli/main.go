package main

import (
	"context"

	"heytelecom-backend/cmd/hey-cli/commands"
	"heytelecom-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "hey-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
