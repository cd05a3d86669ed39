package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ionlife/ionlife/internal/app"
	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/observability"
	"github.com/ionlife/ionlife/internal/platform/cache"
	"github.com/ionlife/ionlife/internal/platform/db"
	"github.com/ionlife/ionlife/internal/reports"
	"github.com/ionlife/ionlife/internal/shared"
	"github.com/ionlife/ionlife/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reports.NewRepository(pool), reportCache)

	scanTask, err := jobs.NewLowStockScanTask(jobs.LowStockPayload{})
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: jobs.NewLowStockScanHandler(inventoryService, logger, metrics)},
			{Type: jobs.TaskStockRebuild, Handler: jobs.NewStockRebuildHandler(inventoryService, reportService, logger, metrics)},
			{Type: jobs.TaskIdempotencySweep, Handler: jobs.NewIdempotencySweepHandler(shared.NewIdempotencyStore(pool), logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.CronLowStockScan, Task: scanTask},
			{Spec: jobs.CronIdempotencySweep, Task: jobs.NewIdempotencySweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
