package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sofmeright/artifreight/src/cli/cmd"
	"github.com/sofmeright/artifreight/src/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	os.Exit(pipeline.ExitCode(err))
}
