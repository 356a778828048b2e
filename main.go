// Package main is the entry point for the Keystone API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"keystone/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
