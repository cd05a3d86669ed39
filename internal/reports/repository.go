package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DateRange bounds a report query. Zero bounds widen to sensible defaults.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) bounds() (time.Time, time.Time) {
	from, to := r.From, r.To
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).Add(24 * time.Hour)
	return from, to
}

// SalesByDay is one day's sales value across delivered orders.
type SalesByDay struct {
	Day    time.Time       `json:"day"`
	Orders int64           `json:"orders"`
	Items  int64           `json:"items"`
	Value  decimal.Decimal `json:"value"`
}

// StatusCount counts orders per lifecycle status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TruckDeliveries aggregates deliveries per truck.
type TruckDeliveries struct {
	TruckID   int64  `json:"truck_id"`
	Plate     string `json:"plate"`
	Total     int64  `json:"total"`
	Delivered int64  `json:"delivered"`
	Returned  int64  `json:"returned"`
}

// DriverPerformance aggregates delivered value per driver.
type DriverPerformance struct {
	DriverID   int64           `json:"driver_id"`
	DriverName string          `json:"driver_name"`
	Deliveries int64           `json:"deliveries"`
	Value      decimal.Decimal `json:"value"`
}

// OrdersSummary is the headline figure block.
type OrdersSummary struct {
	TotalOrders    int64           `json:"total_orders"`
	DeliveredValue decimal.Decimal `json:"delivered_value"`
	PendingOrders  int64           `json:"pending_orders"`
	CancelledRate  float64         `json:"cancelled_rate"`
}

// Dashboard is the combined front-page payload.
type Dashboard struct {
	Summary            OrdersSummary     `json:"summary"`
	SalesByDay         []SalesByDay      `json:"sales_by_day"`
	OrdersByStatus     []StatusCount     `json:"orders_by_status"`
	DeliveriesPerTruck []TruckDeliveries `json:"deliveries_per_truck"`
}

// Repository runs the report aggregations against PostgreSQL. Reads are not
// transactionally isolated from concurrent writes; advisory figures only.
type Repository interface {
	SalesByDay(ctx context.Context, r DateRange) ([]SalesByDay, error)
	OrdersByStatus(ctx context.Context, r DateRange) ([]StatusCount, error)
	DeliveriesPerTruck(ctx context.Context, r DateRange) ([]TruckDeliveries, error)
	DriverPerformance(ctx context.Context, r DateRange) ([]DriverPerformance, error)
	OrdersSummary(ctx context.Context, r DateRange) (OrdersSummary, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// SalesByDay groups delivered sales value by delivery day.
func (r *PGRepository) SalesByDay(ctx context.Context, rng DateRange) ([]SalesByDay, error) {
	from, to := rng.bounds()
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', d.delivered_at) AS day,
			COUNT(DISTINCT o.id), COALESCE(SUM(l.qty), 0), COALESCE(SUM(l.qty * l.unit_price), 0)
		FROM deliveries d
		JOIN orders o ON o.id = d.order_id
		JOIN order_lines l ON l.order_id = o.id
		WHERE o.status = 'Entregado' AND d.delivered_at >= $1 AND d.delivered_at < $2
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: sales by day: %w", err)
	}
	defer rows.Close()

	var out []SalesByDay
	for rows.Next() {
		var s SalesByDay
		if err := rows.Scan(&s.Day, &s.Orders, &s.Items, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// OrdersByStatus counts orders per status for the scheduled window.
func (r *PGRepository) OrdersByStatus(ctx context.Context, rng DateRange) ([]StatusCount, error) {
	from, to := rng.bounds()
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM orders
		WHERE scheduled_date >= $1 AND scheduled_date < $2
		GROUP BY status
		ORDER BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: orders by status: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var s StatusCount
		if err := rows.Scan(&s.Status, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeliveriesPerTruck breaks down each truck's deliveries by outcome.
func (r *PGRepository) DeliveriesPerTruck(ctx context.Context, rng DateRange) ([]TruckDeliveries, error) {
	from, to := rng.bounds()
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.plate, COUNT(d.id),
			COUNT(d.id) FILTER (WHERE d.status = 'Entregado'),
			COUNT(d.id) FILTER (WHERE d.status = 'Reprogramado')
		FROM trucks t
		JOIN deliveries d ON d.truck_id = t.id
		WHERE d.scheduled_at >= $1 AND d.scheduled_at < $2
		GROUP BY t.id, t.plate
		ORDER BY COUNT(d.id) DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: deliveries per truck: %w", err)
	}
	defer rows.Close()

	var out []TruckDeliveries
	for rows.Next() {
		var t TruckDeliveries
		if err := rows.Scan(&t.TruckID, &t.Plate, &t.Total, &t.Delivered, &t.Returned); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DriverPerformance sums delivered sales value per driver.
func (r *PGRepository) DriverPerformance(ctx context.Context, rng DateRange) ([]DriverPerformance, error) {
	from, to := rng.bounds()
	rows, err := r.pool.Query(ctx, `
		SELECT dr.id, dr.name, COUNT(DISTINCT d.id), COALESCE(SUM(l.qty * l.unit_price), 0)
		FROM drivers dr
		JOIN deliveries d ON d.driver_id = dr.id
		JOIN orders o ON o.id = d.order_id
		JOIN order_lines l ON l.order_id = o.id
		WHERE o.status = 'Entregado' AND d.delivered_at >= $1 AND d.delivered_at < $2
		GROUP BY dr.id, dr.name
		ORDER BY SUM(l.qty * l.unit_price) DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: driver performance: %w", err)
	}
	defer rows.Close()

	var out []DriverPerformance
	for rows.Next() {
		var d DriverPerformance
		if err := rows.Scan(&d.DriverID, &d.DriverName, &d.Deliveries, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// OrdersSummary computes the headline figures for the window.
func (r *PGRepository) OrdersSummary(ctx context.Context, rng DateRange) (OrdersSummary, error) {
	from, to := rng.bounds()
	var s OrdersSummary
	var cancelled int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'Pendiente'),
			COUNT(*) FILTER (WHERE status = 'Cancelado'),
			COALESCE((
				SELECT SUM(l.qty * l.unit_price)
				FROM orders o2
				JOIN order_lines l ON l.order_id = o2.id
				WHERE o2.status = 'Entregado' AND o2.scheduled_date >= $1 AND o2.scheduled_date < $2
			), 0)
		FROM orders
		WHERE scheduled_date >= $1 AND scheduled_date < $2`,
		from, to,
	).Scan(&s.TotalOrders, &s.PendingOrders, &cancelled, &s.DeliveredValue)
	if err != nil {
		return OrdersSummary{}, fmt.Errorf("reports: orders summary: %w", err)
	}
	if s.TotalOrders > 0 {
		s.CancelledRate = float64(cancelled) / float64(s.TotalOrders)
	}
	return s, nil
}

var _ Repository = (*PGRepository)(nil)
