package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ionlife/ionlife/internal/app"
	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/logistics"
	"github.com/ionlife/ionlife/internal/masterdata"
	"github.com/ionlife/ionlife/internal/observability"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/platform/cache"
	"github.com/ionlife/ionlife/internal/platform/db"
	"github.com/ionlife/ionlife/internal/reports"
	"github.com/ionlife/ionlife/internal/shared"
	"github.com/ionlife/ionlife/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Warn("redis unavailable, report caching degraded", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	authService := auth.NewService(auth.NewRepository(pool), auditLogger, logger, cfg.JWTSecret, cfg.JWTTTL)
	authMW := auth.NewMiddleware(authService)
	authHandler := auth.NewHandler(logger, authService, authMW)

	masterService := masterdata.NewService(masterdata.NewRepository(pool), auditLogger, logger)
	masterHandler := masterdata.NewHandler(logger, masterService, authMW)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, authMW, shared.NewIdempotencyStore(pool))

	orderService := orders.NewService(orders.NewRepository(pool), orders.NewCatalog(masterService), auditLogger, logger)
	orderHandler := orders.NewHandler(logger, orderService, authMW)

	logisticsService := logistics.NewService(logistics.NewRepository(pool), logistics.NewDirectory(masterService), auditLogger, logger)
	logisticsHandler := logistics.NewHandler(logger, logisticsService, authMW)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reports.NewRepository(pool), reportCache)
	reportHandler := reports.NewHandler(logger, reportService, authMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:     cfg,
		Metrics:    metrics,
		Auth:       authHandler,
		MasterData: masterHandler,
		Inventory:  inventoryHandler,
		Orders:     orderHandler,
		Logistics:  logisticsHandler,
		Reports:    reportHandler,
		Jobs:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
