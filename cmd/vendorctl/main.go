// vendorctl is the operator command line for the vendor workflow. It runs
// against the configured store, so the memory driver is only useful for
// run-once experiments within a single invocation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/vendorflow/internal/app"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &cli{
		out:   os.Stdout,
		load:  config.Load,
		setup: logger.Setup,
		build: app.New,
	}
	if err := cli.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "vendorctl:", err)
		os.Exit(1)
	}
}
