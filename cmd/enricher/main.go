package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/app"
	"github.com/JakeFAU/recipe-image-enricher/internal/config"
	"github.com/JakeFAU/recipe-image-enricher/internal/logging"
	"github.com/JakeFAU/recipe-image-enricher/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, "recipe-image-enricher")
	if err != nil {
		logger.Error("tracer init failed", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("setup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	summary, err := a.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("run canceled", zap.String("run_id", summary.RunID), zap.Int("updated", summary.Updated))
	case err != nil:
		logger.Error("run failed", zap.Error(err))
		return 1
	}
	return 0
}
