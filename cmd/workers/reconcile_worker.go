package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carbon-scribe/verification-registry/internal/app"
	"carbon-scribe/verification-registry/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the JSON config file")
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Store.Backend == config.BackendMemory {
		logger.Fatal("Reconcile worker needs a persistent store backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer registry.Close(context.Background())

	scheduler, err := registry.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create reconcile scheduler", zap.Error(err))
	}

	if *once {
		report, err := scheduler.RunNow(ctx)
		if err != nil {
			logger.Fatal("Reconciliation failed", zap.Error(err))
		}
		logger.Info("Reconciliation finished",
			zap.Int("checked", report.Checked),
			zap.Int("repaired", len(report.Repaired)),
			zap.Int("missing", len(report.Missing)),
			zap.Int("duplicates", len(report.Duplicates)))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		logger.Info("Reconcile worker started", zap.String("schedule", cfg.Workflow.ReconcileSchedule))
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Reconcile worker stopped with error", zap.Error(err))
	}
	logger.Info("Reconcile worker exiting")
}
