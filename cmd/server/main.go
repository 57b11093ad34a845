// Package main is the entry point for the rewardbridge API server.
//
// It loads the configuration and rewards catalog, assembles the services,
// starts the cron scheduler and serves the HTTP API until SIGINT or SIGTERM.
// On shutdown the HTTP server drains first so no request can start a job
// after the scheduler has stopped.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rewardbridge/internal/app"
	"rewardbridge/internal/config"
	"rewardbridge/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cat, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading rewards catalog: %w", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel).With("service", cfg.Service)
	logger.Info("rewardbridge server starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, cat, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := scheduler.New(a.Runner, a.Schedules(), cfg.Location(), logger.With("component", "cron"))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if cfg.Scheduler.Enabled {
		jobs.Start()
	} else {
		logger.Info("cron scheduler disabled, jobs run only on demand")
	}

	srv, err := a.NewServer(jobs)
	if err != nil {
		return err
	}

	serveErr := srv.ListenAndServe(ctx)
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error("HTTP server failed", "error", serveErr)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := jobs.Stop(stopCtx); err != nil {
		logger.Error("scheduler shutdown incomplete", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("server stopped cleanly")
	return nil
}
