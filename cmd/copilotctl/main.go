package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bizmatters/cad-copilot/internal/cli"
	"github.com/bizmatters/cad-copilot/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "WARN"
	}
	logging.Install(os.Stderr, logLevel)

	if err := cli.Execute(ctx, cli.DefaultOptions()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
