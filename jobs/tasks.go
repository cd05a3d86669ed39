package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/observability"
	"github.com/ionlife/ionlife/internal/reports"
	"github.com/ionlife/ionlife/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan walks the stock levels and flags pairs under their
	// minimum. Scheduled every morning before dispatch planning.
	TaskLowStockScan = "stock:low_scan"
	// TaskStockRebuild recomputes the stock level aggregates from the
	// movement ledger.
	TaskStockRebuild = "stock:rebuild"
	// TaskIdempotencySweep drops idempotency reservations past retention.
	TaskIdempotencySweep = "shared:idempotency_sweep"
)

// CronLowStockScan runs the scan at 06:00 every day.
const CronLowStockScan = "0 6 * * *"

// CronIdempotencySweep runs the sweep nightly, before the morning scan.
const CronIdempotencySweep = "30 3 * * *"

// IdempotencyRetention is how long a reservation blocks duplicates. Clients
// retry within minutes; two days leaves room for a stuck queue.
const IdempotencyRetention = 48 * time.Hour

// LowStockPayload bounds the scan. Zero means every warehouse.
type LowStockPayload struct {
	WarehouseID int64 `json:"warehouse_id"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask(payload LowStockPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// NewStockRebuildTask constructs the rebuild task.
func NewStockRebuildTask() *asynq.Task {
	return asynq.NewTask(TaskStockRebuild, nil)
}

// NewIdempotencySweepTask constructs the sweep task.
func NewIdempotencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencySweep, nil)
}

// NewLowStockScanHandler builds the handler for TaskLowStockScan.
func NewLowStockScanHandler(inv *inventory.Service, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		levels, err := inv.LowStock(ctx)
		if err != nil {
			metrics.ObserveJob(TaskLowStockScan, "error")
			return err
		}
		flagged := 0
		for _, lvl := range levels {
			if payload.WarehouseID != 0 && lvl.WarehouseID != payload.WarehouseID {
				continue
			}
			flagged++
			logger.Warn("stock below minimum",
				slog.Int64("warehouse_id", lvl.WarehouseID),
				slog.Int64("product_id", lvl.ProductID),
				slog.Int64("qty", lvl.Qty),
				slog.Int64("min_qty", lvl.MinQty))
		}
		logger.Info("low stock scan finished", slog.Int("flagged", flagged))
		metrics.ObserveJob(TaskLowStockScan, "ok")
		return nil
	}
}

// NewStockRebuildHandler builds the handler for TaskStockRebuild. A rebuild
// changes the figures every report is derived from, so the report cache is
// invalidated afterwards.
func NewStockRebuildHandler(inv *inventory.Service, rep *reports.Service, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := inv.Rebuild(ctx); err != nil {
			metrics.ObserveJob(TaskStockRebuild, "error")
			return err
		}
		if rep != nil {
			if err := rep.Invalidate(ctx); err != nil {
				logger.Warn("report cache invalidation failed", slog.Any("error", err))
			}
		}
		logger.Info("stock levels rebuilt from ledger")
		metrics.ObserveJob(TaskStockRebuild, "ok")
		return nil
	}
}

// NewIdempotencySweepHandler builds the handler for TaskIdempotencySweep.
func NewIdempotencySweepHandler(store *shared.IdempotencyStore, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := store.Sweep(ctx, IdempotencyRetention); err != nil {
			metrics.ObserveJob(TaskIdempotencySweep, "error")
			return err
		}
		logger.Info("idempotency reservations swept")
		metrics.ObserveJob(TaskIdempotencySweep, "ok")
		return nil
	}
}
