package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"livepoll/internal/app/bootstrap"
	"livepoll/internal/platform/logging"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM, then drain and close the bus and stores.
func main() {
	slog.SetDefault(logging.New(os.Stdout, os.Getenv("LOG_LEVEL")))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		slog.Error("bootstrap api failed", "event", "api_bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}

	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		slog.Error("api shutdown close failed", "event", "api_close_failed", "error", err.Error())
	}
	if runErr != nil {
		slog.Error("api stopped with error", "event", "api_run_failed", "error", runErr.Error())
		os.Exit(1)
	}
}
