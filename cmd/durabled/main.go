// Command durabled runs the workflow engine as a daemon: an HTTP API, a
// worker pool over a shared SQLite database, and optional cron triggers for
// recurring workflows.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/flowpilot-io/durable"
	"github.com/flowpilot-io/durable/incident"
	"github.com/flowpilot-io/durable/pkg/metrics"
	workerpkg "github.com/flowpilot-io/durable/pkg/worker"
	"github.com/flowpilot-io/durable/server"
)

func main() {
	configPath := flag.String("config", "durabled.yaml", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("durabled exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg server.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}

func run(configPath string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	observer := durable.NewCompositeObserver(
		metrics.NewObserver(registry),
		durable.NewLoggingObserver(logger),
	)

	bundle, err := durable.NewSQLiteBundle(db, workerpkg.Config{
		Concurrency:   cfg.Worker.Concurrency,
		LeaseDuration: cfg.Worker.LeaseDuration,
		Logger:        logger,
	}, observer)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	if err := incident.Registry(logger).Apply(bundle.Engine); err != nil {
		return fmt.Errorf("register workflows: %w", err)
	}

	if _, err := server.StartTriggers(ctx, cfg.Triggers, bundle.Engine, logger); err != nil {
		return fmt.Errorf("start triggers: %w", err)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := bundle.Worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("worker stopped", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(bundle.Engine, logger, registry),
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	select {
	case err := <-httpErr:
		stop()
		<-workerDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-workerDone
	return nil
}
