// Command holoclient talks to a Holochain conductor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/holoclient/internal/cli"
	"github.com/roach88/holoclient/internal/logging"
)

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "holoclient: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
