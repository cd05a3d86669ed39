package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Tx-scoped ledger primitives. These run inside a caller-owned transaction so
// order admission and delivery confirmation can combine stock checks and
// ledger writes into one atomic unit.

// ApplyMovement appends a ledger row and folds its delta into the stock level
// aggregate. It returns the resulting quantity; callers that must not drive
// stock negative check the result, administrative corrections may ignore it.
func ApplyMovement(ctx context.Context, tx pgx.Tx, m Movement) (Movement, int64, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_movements (warehouse_id, product_id, qty, kind, order_id, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`,
		m.WarehouseID, m.ProductID, m.Qty, m.Kind, m.OrderID, m.Note, m.ActorID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Movement{}, 0, fmt.Errorf("inventory: insert movement: %w", err)
	}

	var qty int64
	err = tx.QueryRow(ctx, `
		INSERT INTO stock_levels (warehouse_id, product_id, qty, min_qty, updated_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (warehouse_id, product_id)
		DO UPDATE SET qty = stock_levels.qty + EXCLUDED.qty, updated_at = NOW()
		RETURNING qty`,
		m.WarehouseID, m.ProductID, m.Qty,
	).Scan(&qty)
	if err != nil {
		return Movement{}, 0, fmt.Errorf("inventory: upsert stock level: %w", err)
	}
	return m, qty, nil
}

// StockForUpdate reads one stock level row with a row lock, returning zero
// for a pair that has never moved.
func StockForUpdate(ctx context.Context, tx pgx.Tx, warehouseID, productID int64) (int64, error) {
	var qty int64
	err := tx.QueryRow(ctx, `
		SELECT qty FROM stock_levels
		WHERE warehouse_id = $1 AND product_id = $2
		FOR UPDATE`, warehouseID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: stock for update: %w", err)
	}
	return qty, nil
}

// AggregateAvailableForUpdate sums a product's stock across warehouses,
// locking the touched rows so a concurrent admission cannot interleave
// between check and insert.
func AggregateAvailableForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT qty FROM stock_levels
		WHERE product_id = $1
		FOR UPDATE`, productID)
	if err != nil {
		return 0, fmt.Errorf("inventory: aggregate available: %w", err)
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var qty int64
		if err := rows.Scan(&qty); err != nil {
			return 0, err
		}
		total += qty
	}
	return total, rows.Err()
}

// PickSourceWarehouse selects the warehouse holding the most of a product.
// Fulfillment is single-source per line; there is no cross-warehouse split.
func PickSourceWarehouse(ctx context.Context, tx pgx.Tx, productID int64) (warehouseID, qty int64, err error) {
	err = tx.QueryRow(ctx, `
		SELECT warehouse_id, qty FROM stock_levels
		WHERE product_id = $1
		ORDER BY qty DESC, warehouse_id ASC
		LIMIT 1
		FOR UPDATE`, productID).Scan(&warehouseID, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("inventory: pick source warehouse: %w", err)
	}
	return warehouseID, qty, nil
}

// HasOpenOutForOrder reports whether the order holds shipped goods that have
// not come back: an OUT row newer than the order's last RETURN. Delivery
// confirmation uses it to stay idempotent within a cycle while a returned
// order, whose OUT rows were compensated, ships again on the next cycle.
func HasOpenOutForOrder(ctx context.Context, tx pgx.Tx, orderID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inventory_movements
			WHERE order_id = $1 AND kind = $2
			  AND id > COALESCE((
				SELECT MAX(id) FROM inventory_movements
				WHERE order_id = $1 AND kind = $3
			  ), 0)
		)`, orderID, MovementOut, MovementReturn).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("inventory: has open out movement: %w", err)
	}
	return exists, nil
}

// RebuildStockLevels recomputes every aggregate row from the ledger. Used by
// the integrity-repair job; rows with no remaining movements reset to zero.
func RebuildStockLevels(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		UPDATE stock_levels sl
		SET qty = COALESCE(m.total, 0), updated_at = NOW()
		FROM (
			SELECT warehouse_id, product_id, SUM(qty) AS total
			FROM inventory_movements
			GROUP BY warehouse_id, product_id
		) m
		WHERE m.warehouse_id = sl.warehouse_id AND m.product_id = sl.product_id`)
	if err != nil {
		return fmt.Errorf("inventory: rebuild stock levels: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO stock_levels (warehouse_id, product_id, qty, min_qty, updated_at)
		SELECT m.warehouse_id, m.product_id, SUM(m.qty), 0, NOW()
		FROM inventory_movements m
		LEFT JOIN stock_levels sl ON sl.warehouse_id = m.warehouse_id AND sl.product_id = m.product_id
		WHERE sl.warehouse_id IS NULL
		GROUP BY m.warehouse_id, m.product_id`)
	if err != nil {
		return fmt.Errorf("inventory: rebuild missing stock levels: %w", err)
	}
	return nil
}
