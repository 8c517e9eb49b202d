package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orthanc-kz/orthanc-harvester/internal/app"
	"github.com/orthanc-kz/orthanc-harvester/internal/config"
	"github.com/orthanc-kz/orthanc-harvester/internal/logger"
)

// synconce reconciles every configured scope exactly once and exits. Meant
// for cron-style scheduling and manual backfills.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("one-shot sync starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, logger.Std{})
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err)
		return err
	}
	defer harvester.Close()

	if err := harvester.RunOnce(ctx); err != nil {
		return fmt.Errorf("sync run: %w", err)
	}

	return nil
}
