package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"docforge/internal/config"
	"docforge/internal/daemon"
	"docforge/internal/logging"
	"docforge/internal/tracing"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	shutdownTracing, err := tracing.Init(cfg)
	if err != nil {
		logger.Warn("telemetry disabled", logging.Error(err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("docforged shutting down")
}
