package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wunderabt/power-meter/internal/app"
	"github.com/wunderabt/power-meter/internal/config"
	"github.com/wunderabt/power-meter/internal/logging"
)

var version = "dev"
var appName = "meterdump"

func main() {
	cfg, err := config.LoadDumpFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries dump output, so logs go to stderr.
	logger := logging.NewTo(os.Stderr, cfg.Base, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.RunDump(ctx, cfg, os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, app.ErrUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case err != nil && !errors.Is(err, context.Canceled):
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}
