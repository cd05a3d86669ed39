package logistics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/shared"
)

// TxRepository exposes the operations available inside one fulfillment
// transaction. Confirmation and returns couple status updates with ledger
// writes; both live behind the same tx so shortfalls roll everything back.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status, actorID int64) error
	InsertHistory(ctx context.Context, h orders.StatusHistory) error

	DeliveryByOrderForUpdate(ctx context.Context, orderID int64) (Delivery, bool, error)
	InsertDelivery(ctx context.Context, d Delivery) (int64, error)
	UpdateDelivery(ctx context.Context, d Delivery) error

	HasOpenOut(ctx context.Context, orderID int64) (bool, error)
	PickSource(ctx context.Context, productID int64) (warehouseID, qty int64, err error)
	ApplyMovement(ctx context.Context, m inventory.Movement) (int64, error)

	DeliveredSalesTotal(ctx context.Context, truckID int64, from, to time.Time) (decimal.Decimal, error)
	InsertSettlement(ctx context.Context, s ReturnSettlement) (ReturnSettlement, error)
}

// Repository defines persistence for the logistics module.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	DeliveryByOrder(ctx context.Context, orderID int64) (Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error)
	InsertIncident(ctx context.Context, inc DeliveryIncident) (DeliveryIncident, error)
	ListIncidents(ctx context.Context, deliveryID int64) ([]DeliveryIncident, error)
	TruckRoute(ctx context.Context, truckID int64, day time.Time) ([]RouteStop, error)
	TruckSummary(ctx context.Context, truckID int64, day time.Time) (TruckSummary, error)
	ListSettlements(ctx context.Context, truckID int64, day time.Time) ([]ReturnSettlement, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("logistics: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("logistics: commit tx: %w", err)
	}
	return nil
}

const deliveryColumns = `id, order_id, truck_id, driver_id, status, scheduled_at, delivered_at,
	created_by, updated_by, created_at, updated_at`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.OrderID, &d.TruckID, &d.DriverID, &d.Status, &d.ScheduledAt, &d.DeliveredAt,
		&d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, shared.ErrNotFound
	}
	return d, err
}

// GetDelivery loads one delivery.
func (r *PGRepository) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
}

// DeliveryByOrder loads the delivery attached to an order.
func (r *PGRepository) DeliveryByOrder(ctx context.Context, orderID int64) (Delivery, error) {
	return scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, orderID))
}

// ListDeliveries returns deliveries matching the filter, newest first.
func (r *PGRepository) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error) {
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
	if filter.TruckID != nil {
		add("truck_id = ", *filter.TruckID)
	}
	if filter.DriverID != nil {
		add("driver_id = ", *filter.DriverID)
	}
	if filter.Status != nil {
		add("status = ", *filter.Status)
	}
	if !filter.Date.IsZero() {
		from, to := dayBounds(filter.Date)
		add("scheduled_at >= ", from)
		add("scheduled_at < ", to)
	}
	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_at DESC, id DESC LIMIT 500"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("logistics: list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertIncident appends an incident row.
func (r *PGRepository) InsertIncident(ctx context.Context, inc DeliveryIncident) (DeliveryIncident, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO delivery_incidents (delivery_id, kind, description, actor_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		inc.DeliveryID, inc.Kind, inc.Description, inc.ActorID,
	).Scan(&inc.ID, &inc.CreatedAt)
	if err != nil {
		return DeliveryIncident{}, fmt.Errorf("logistics: insert incident: %w", err)
	}
	return inc, nil
}

// ListIncidents returns a delivery's incidents oldest first.
func (r *PGRepository) ListIncidents(ctx context.Context, deliveryID int64) ([]DeliveryIncident, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, delivery_id, kind, description, actor_id, created_at
		FROM delivery_incidents
		WHERE delivery_id = $1
		ORDER BY created_at ASC, id ASC`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("logistics: list incidents: %w", err)
	}
	defer rows.Close()

	var out []DeliveryIncident
	for rows.Next() {
		var inc DeliveryIncident
		if err := rows.Scan(&inc.ID, &inc.DeliveryID, &inc.Kind, &inc.Description, &inc.ActorID, &inc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// TruckRoute builds a truck's route sheet for one day.
func (r *PGRepository) TruckRoute(ctx context.Context, truckID int64, day time.Time) ([]RouteStop, error) {
	from, to := dayBounds(day)
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, o.id, c.name, o.address, o.status,
			COALESCE(SUM(l.qty), 0), COALESCE(SUM(l.qty * l.unit_price), 0)
		FROM deliveries d
		JOIN orders o ON o.id = d.order_id
		JOIN customers c ON c.id = o.customer_id
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE d.truck_id = $1 AND d.scheduled_at >= $2 AND d.scheduled_at < $3
		GROUP BY d.id, o.id, c.name, o.address, o.status
		ORDER BY d.id`, truckID, from, to)
	if err != nil {
		return nil, fmt.Errorf("logistics: truck route: %w", err)
	}
	defer rows.Close()

	var stops []RouteStop
	for rows.Next() {
		var s RouteStop
		if err := rows.Scan(&s.DeliveryID, &s.OrderID, &s.CustomerName, &s.Address, &s.Status, &s.Items, &s.Total); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// TruckSummary aggregates a truck's day across its deliveries.
func (r *PGRepository) TruckSummary(ctx context.Context, truckID int64, day time.Time) (TruckSummary, error) {
	from, to := dayBounds(day)
	summary := TruckSummary{TruckID: truckID, Date: from}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT d.order_id), COALESCE(SUM(l.qty), 0), COALESCE(SUM(l.qty * l.unit_price), 0)
		FROM deliveries d
		JOIN order_lines l ON l.order_id = d.order_id
		WHERE d.truck_id = $1 AND d.scheduled_at >= $2 AND d.scheduled_at < $3`,
		truckID, from, to,
	).Scan(&summary.TotalOrders, &summary.TotalItems, &summary.TotalValue)
	if err != nil {
		return TruckSummary{}, fmt.Errorf("logistics: truck summary: %w", err)
	}
	return summary, nil
}

// ListSettlements returns a truck's settlements for one day.
func (r *PGRepository) ListSettlements(ctx context.Context, truckID int64, day time.Time) ([]ReturnSettlement, error) {
	from, to := dayBounds(day)
	rows, err := r.pool.Query(ctx, `
		SELECT id, reference, order_id, delivery_id, truck_id, driver_id, cash_amount, expected_amount,
			expense_fuel, expense_meal, expense_other, settled_on, actor_id, created_at
		FROM return_settlements
		WHERE truck_id = $1 AND settled_on >= $2 AND settled_on < $3
		ORDER BY id`, truckID, from, to)
	if err != nil {
		return nil, fmt.Errorf("logistics: list settlements: %w", err)
	}
	defer rows.Close()

	var out []ReturnSettlement
	for rows.Next() {
		var s ReturnSettlement
		if err := rows.Scan(&s.ID, &s.Reference, &s.OrderID, &s.DeliveryID, &s.TruckID, &s.DriverID,
			&s.CashAmount, &s.Expected, &s.Expenses.Fuel, &s.Expenses.Meal, &s.Expenses.Other,
			&s.SettledOn, &s.ActorID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return from, from.Add(24 * time.Hour)
}

// ===== TX REPOSITORY =====

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error) {
	var o orders.Order
	err := r.tx.QueryRow(ctx, `
		SELECT id, customer_id, address, status, scheduled_date
		FROM orders
		WHERE id = $1
		FOR UPDATE`, id).Scan(&o.ID, &o.CustomerID, &o.Address, &o.Status, &o.ScheduledDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &shared.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("logistics: order for update: %w", err)
	}

	rows, err := r.tx.Query(ctx, `
		SELECT id, order_id, product_id, qty, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return orders.Order{}, fmt.Errorf("logistics: order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l orders.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Qty, &l.UnitPrice); err != nil {
			return orders.Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status orders.Status, actorID int64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		orderID, status, actorID)
	if err != nil {
		return fmt.Errorf("logistics: update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "order", ID: orderID}
	}
	return nil
}

func (r *txRepo) InsertHistory(ctx context.Context, h orders.StatusHistory) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		h.OrderID, h.Status, h.Note, h.ActorID)
	if err != nil {
		return fmt.Errorf("logistics: insert history: %w", err)
	}
	return nil
}

func (r *txRepo) DeliveryByOrderForUpdate(ctx context.Context, orderID int64) (Delivery, bool, error) {
	d, err := scanDelivery(r.tx.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, shared.ErrNotFound) {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, fmt.Errorf("logistics: delivery for update: %w", err)
	}
	return d, true, nil
}

func (r *txRepo) InsertDelivery(ctx context.Context, d Delivery) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO deliveries (order_id, truck_id, driver_id, status, scheduled_at,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, NOW(), NOW())
		RETURNING id`,
		d.OrderID, d.TruckID, d.DriverID, d.Status, d.ScheduledAt, d.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("logistics: insert delivery: %w", err)
	}
	return id, nil
}

func (r *txRepo) UpdateDelivery(ctx context.Context, d Delivery) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE deliveries
		SET truck_id = $2, driver_id = $3, status = $4, scheduled_at = $5,
		    delivered_at = $6, updated_by = $7, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.TruckID, d.DriverID, d.Status, d.ScheduledAt, d.DeliveredAt, d.UpdatedBy)
	if err != nil {
		return fmt.Errorf("logistics: update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "delivery", ID: d.ID}
	}
	return nil
}

func (r *txRepo) HasOpenOut(ctx context.Context, orderID int64) (bool, error) {
	return inventory.HasOpenOutForOrder(ctx, r.tx, orderID)
}

func (r *txRepo) PickSource(ctx context.Context, productID int64) (int64, int64, error) {
	return inventory.PickSourceWarehouse(ctx, r.tx, productID)
}

func (r *txRepo) ApplyMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	_, qty, err := inventory.ApplyMovement(ctx, r.tx, m)
	return qty, err
}

// DeliveredSalesTotal sums the sales value of every order this truck delivered
// in [from, to) that is still in delivered status.
func (r *txRepo) DeliveredSalesTotal(ctx context.Context, truckID int64, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.qty * l.unit_price), 0)
		FROM deliveries d
		JOIN orders o ON o.id = d.order_id
		JOIN order_lines l ON l.order_id = o.id
		WHERE d.truck_id = $1
		  AND o.status = $2
		  AND d.delivered_at >= $3 AND d.delivered_at < $4`,
		truckID, orders.StatusEntregado, from, to,
	).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("logistics: delivered sales total: %w", err)
	}
	return total, nil
}

func (r *txRepo) InsertSettlement(ctx context.Context, s ReturnSettlement) (ReturnSettlement, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO return_settlements (reference, order_id, delivery_id, truck_id, driver_id,
			cash_amount, expected_amount, expense_fuel, expense_meal, expense_other,
			settled_on, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id, created_at`,
		s.Reference, s.OrderID, s.DeliveryID, s.TruckID, s.DriverID,
		s.CashAmount, s.Expected, s.Expenses.Fuel, s.Expenses.Meal, s.Expenses.Other,
		s.SettledOn, s.ActorID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return ReturnSettlement{}, fmt.Errorf("logistics: insert settlement: %w", err)
	}
	return s, nil
}

var (
	_ Repository   = (*PGRepository)(nil)
	_ TxRepository = (*txRepo)(nil)
)
