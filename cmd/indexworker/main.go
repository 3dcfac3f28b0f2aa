// Package main starts the index worker process lifecycle.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	indexworkercmd "github.com/harborlaw/intake/internal/cmd/indexworker"
	"github.com/harborlaw/intake/internal/platform/config"
)

func main() {
	cfg, err := indexworkercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := indexworkercmd.Run(ctx, cfg); err != nil {
		config.Exitf("failed to serve: %v", err)
	}
}
