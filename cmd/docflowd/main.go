// Command docflowd runs the docflow background daemon: inbox watching,
// pipeline execution, and review claim expiry.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"docflow/internal/config"
	"docflow/internal/daemonrun"
	"docflow/internal/logging"
	"docflow/internal/review"
	"docflow/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := review.Open(cfg)
	if err != nil {
		logger.Error("open review store", logging.Error(err))
		return
	}

	mgr, err := workflow.NewManager(cfg, store, logger)
	if err != nil {
		logger.Error("create workflow manager", logging.Error(err))
		store.Close()
		return
	}

	d, err := daemonrun.New(cfg, store, logger, mgr)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("docflowd shutting down")
}
