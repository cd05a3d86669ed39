package inventory

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ionlife/ionlife/internal/shared"
)

// Service wraps ledger business rules.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the inventory service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// MovementResult is a recorded movement plus the resulting stock quantity.
type MovementResult struct {
	Movement     Movement `json:"movement"`
	ResultingQty int64    `json:"resulting_qty"`
}

// RecordMovement appends a movement and returns the resulting quantity.
// Negative results are allowed; administrative corrections must be able to
// drive a cached level below zero, and the caller sees the outcome.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	if input.WarehouseID <= 0 {
		return MovementResult{}, shared.NewValidationError("warehouse_id", "must be positive")
	}
	if input.ProductID <= 0 {
		return MovementResult{}, shared.NewValidationError("product_id", "must be positive")
	}
	if input.Qty == 0 {
		return MovementResult{}, ErrZeroQty
	}
	if !input.Kind.Valid() {
		return MovementResult{}, shared.NewValidationError("kind", "must be one of IN, OUT, RETURN, ADJUSTMENT")
	}

	movement, qty, err := s.repo.RecordMovement(ctx, Movement{
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		Qty:         input.Qty,
		Kind:        input.Kind,
		OrderID:     input.OrderID,
		Note:        input.Note,
		ActorID:     input.ActorID,
	})
	if err != nil {
		return MovementResult{}, err
	}

	if qty < 0 && s.logger != nil {
		s.logger.Warn("stock level went negative",
			slog.Int64("warehouse_id", movement.WarehouseID),
			slog.Int64("product_id", movement.ProductID),
			slog.Int64("qty", qty))
	}
	s.recordAudit(ctx, input.ActorID, "inventory.move", movement.ID, map[string]any{
		"warehouse_id": movement.WarehouseID,
		"product_id":   movement.ProductID,
		"qty":          movement.Qty,
		"kind":         movement.Kind,
	})
	return MovementResult{Movement: movement, ResultingQty: qty}, nil
}

// AggregateAvailable sums a product's stock across warehouses.
func (s *Service) AggregateAvailable(ctx context.Context, productID int64) (int64, error) {
	if productID <= 0 {
		return 0, shared.NewValidationError("product_id", "must be positive")
	}
	return s.repo.AggregateAvailable(ctx, productID)
}

// ListMovements queries the ledger.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// ListStockLevels returns the aggregate cache.
func (s *Service) ListStockLevels(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	return s.repo.ListStockLevels(ctx, filter)
}

// LowStock lists pairs under their minimum threshold.
func (s *Service) LowStock(ctx context.Context) ([]StockLevel, error) {
	return s.repo.LowStock(ctx)
}

// SetMinQty updates a pair's low-stock threshold.
func (s *Service) SetMinQty(ctx context.Context, actorID, warehouseID, productID, minQty int64) error {
	if minQty < 0 {
		return shared.NewValidationError("min_qty", "must not be negative")
	}
	if err := s.repo.SetMinQty(ctx, warehouseID, productID, minQty); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "inventory.min_qty", warehouseID, map[string]any{
		"warehouse_id": warehouseID,
		"product_id":   productID,
		"min_qty":      minQty,
	})
	return nil
}

// Rebuild recomputes stock levels from the ledger.
func (s *Service) Rebuild(ctx context.Context) error {
	return s.repo.Rebuild(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_movement",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
