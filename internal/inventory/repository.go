package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ionlife/ionlife/internal/platform/db"
	"github.com/ionlife/ionlife/internal/shared"
)

// Repository defines persistence for the inventory module.
type Repository interface {
	RecordMovement(ctx context.Context, m Movement) (Movement, int64, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListStockLevels(ctx context.Context, filter StockFilter) ([]StockLevel, error)
	AggregateAvailable(ctx context.Context, productID int64) (int64, error)
	LowStock(ctx context.Context) ([]StockLevel, error)
	SetMinQty(ctx context.Context, warehouseID, productID, minQty int64) error
	Rebuild(ctx context.Context) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RecordMovement appends a ledger row and updates the aggregate atomically.
func (r *PGRepository) RecordMovement(ctx context.Context, m Movement) (Movement, int64, error) {
	var (
		saved Movement
		qty   int64
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		saved, qty, err = ApplyMovement(ctx, tx, m)
		return err
	})
	if err != nil {
		return Movement{}, 0, err
	}
	return saved, qty, nil
}

// ListMovements queries the ledger with bound-parameter predicates only.
func (r *PGRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	argPos := 1
	add := func(cond string, value any) {
		conds = append(conds, cond+"$"+strconv.Itoa(argPos))
		args = append(args, value)
		argPos++
	}
	if filter.WarehouseID != nil {
		add("warehouse_id = ", *filter.WarehouseID)
	}
	if filter.ProductID != nil {
		add("product_id = ", *filter.ProductID)
	}
	if filter.Kind != nil {
		add("kind = ", *filter.Kind)
	}
	if filter.OrderID != nil {
		add("order_id = ", *filter.OrderID)
	}
	if !filter.From.IsZero() {
		add("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= ", filter.To)
	}

	query := `SELECT id, warehouse_id, product_id, qty, kind, order_id, note, actor_id, created_at FROM inventory_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT $" + strconv.Itoa(argPos)
	args = append(args, limit)
	argPos++
	if filter.Offset > 0 {
		query += " OFFSET $" + strconv.Itoa(argPos)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Qty, &m.Kind, &m.OrderID, &m.Note, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListStockLevels returns aggregate rows matching the filter.
func (r *PGRepository) ListStockLevels(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	var (
		conds []string
		args  []any
	)
	argPos := 1
	if filter.WarehouseID != nil {
		conds = append(conds, "warehouse_id = $"+strconv.Itoa(argPos))
		args = append(args, *filter.WarehouseID)
		argPos++
	}
	if filter.ProductID != nil {
		conds = append(conds, "product_id = $"+strconv.Itoa(argPos))
		args = append(args, *filter.ProductID)
	}

	query := `SELECT warehouse_id, product_id, qty, min_qty, updated_at FROM stock_levels`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY warehouse_id, product_id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list stock levels: %w", err)
	}
	defer rows.Close()

	return scanStockLevels(rows)
}

// AggregateAvailable sums a product's stock across all warehouses.
func (r *PGRepository) AggregateAvailable(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0) FROM stock_levels WHERE product_id = $1`, productID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("inventory: aggregate available: %w", err)
	}
	return total, nil
}

// LowStock lists aggregate rows under their minimum threshold.
func (r *PGRepository) LowStock(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT warehouse_id, product_id, qty, min_qty, updated_at
		FROM stock_levels
		WHERE min_qty > 0 AND qty < min_qty
		ORDER BY warehouse_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("inventory: low stock: %w", err)
	}
	defer rows.Close()

	return scanStockLevels(rows)
}

// SetMinQty updates the low-stock threshold for a pair.
func (r *PGRepository) SetMinQty(ctx context.Context, warehouseID, productID, minQty int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stock_levels SET min_qty = $3, updated_at = NOW()
		WHERE warehouse_id = $1 AND product_id = $2`, warehouseID, productID, minQty)
	if err != nil {
		return fmt.Errorf("inventory: set min qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Rebuild recomputes all stock levels from the ledger.
func (r *PGRepository) Rebuild(ctx context.Context) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return RebuildStockLevels(ctx, tx)
	})
}

func scanStockLevels(rows pgx.Rows) ([]StockLevel, error) {
	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.WarehouseID, &sl.ProductID, &sl.Qty, &sl.MinQty, &sl.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
