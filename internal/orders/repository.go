package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/shared"
)

// TxRepository exposes the operations available inside one transaction.
// Admission couples the availability check and the order insert; keeping both
// behind the same tx keeps check-then-act atomic.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error
	ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrderHeader(ctx context.Context, o Order) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status Status, actorID int64) error
	InsertHistory(ctx context.Context, h StatusHistory) error
	AggregateAvailable(ctx context.Context, productID int64) (int64, error)
	PendingDemand(ctx context.Context, productID, excludeOrderID int64) (int64, error)
	UpdateDeliveryStatusForOrder(ctx context.Context, orderID int64, status Status) (bool, error)
}

// Repository defines persistence for the orders module.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error)
	ListHistory(ctx context.Context, orderID int64) ([]StatusHistory, error)
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
		return fmt.Errorf("orders: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("orders: commit tx: %w", err)
	}
	return nil
}

const orderColumns = `o.id, o.customer_id, c.name, o.address, o.status, o.payment_method, o.priority, o.notes,
	o.scheduled_date, o.created_by, o.updated_by, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.Address, &o.Status, &o.PaymentMethod, &o.Priority,
		&o.Notes, &o.ScheduledDate, &o.CreatedBy, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.ErrNotFound
	}
	return o, err
}

// GetOrder loads an order with its lines and computed total.
func (r *PGRepository) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	lines, err := loadLines(ctx, r.pool, id)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines
	order.Total = linesTotal(lines)
	return order, nil
}

// ListOrders returns a filtered page of orders with their lines.
func (r *PGRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error) {
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
	if filter.Status != nil {
		add("o.status = ", *filter.Status)
	}
	if filter.CustomerID != nil {
		add("o.customer_id = ", *filter.CustomerID)
	}
	if !filter.From.IsZero() {
		add("o.scheduled_date >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("o.scheduled_date <= ", filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders o` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("orders: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	query := `SELECT ` + orderColumns + `
		FROM orders o
		JOIN customers c ON c.id = o.customer_id` + where + `
		ORDER BY o.scheduled_date DESC, o.id DESC
		LIMIT $` + strconv.Itoa(argPos) + ` OFFSET $` + strconv.Itoa(argPos+1)
	args = append(args, perPage, shared.PageOffset(page, perPage))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range out {
		lines, err := loadLines(ctx, r.pool, out[i].ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out[i].Lines = lines
		out[i].Total = linesTotal(lines)
	}
	return out, shared.NewPagination(page, perPage, total), nil
}

// ListHistory returns the status trail oldest first.
func (r *PGRepository) ListHistory(ctx context.Context, orderID int64) ([]StatusHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, status, note, actor_id, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: list history: %w", err)
	}
	defer rows.Close()

	var history []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Note, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q queryer, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.order_id, l.product_id, p.name, l.qty, l.unit_price, l.price_type_id, l.discount_per_unit
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.order_id = $1
		ORDER BY l.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Qty, &l.UnitPrice, &l.PriceTypeID, &l.DiscountPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ===== TX REPOSITORY =====

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, address, status, payment_method, priority, notes, scheduled_date,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, NOW(), NOW())
		RETURNING id`,
		o.CustomerID, o.Address, o.Status, o.PaymentMethod, o.Priority, o.Notes, o.ScheduledDate, o.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

func (r *txRepo) InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	for _, l := range lines {
		_, err := r.tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, product_id, qty, unit_price, price_type_id, discount_per_unit)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, l.ProductID, l.Qty, l.UnitPrice, l.PriceTypeID, l.DiscountPerUnit)
		if err != nil {
			return fmt.Errorf("orders: insert line: %w", err)
		}
	}
	return nil
}

func (r *txRepo) ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("orders: delete lines: %w", err)
	}
	return r.InsertLines(ctx, orderID, lines)
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1
		FOR UPDATE OF o`, id))
	if err != nil {
		return Order{}, err
	}
	lines, err := loadLines(ctx, r.tx, id)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines
	order.Total = linesTotal(lines)
	return order, nil
}

func (r *txRepo) UpdateOrderHeader(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET address = $2, payment_method = $3, priority = $4, notes = $5, scheduled_date = $6,
			updated_by = $7, updated_at = NOW()
		WHERE id = $1`,
		o.ID, o.Address, o.PaymentMethod, o.Priority, o.Notes, o.ScheduledDate, o.UpdatedBy)
	if err != nil {
		return fmt.Errorf("orders: update header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status Status, actorID int64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_by = $3, updated_at = NOW() WHERE id = $1`,
		orderID, status, actorID)
	if err != nil {
		return fmt.Errorf("orders: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertHistory(ctx context.Context, h StatusHistory) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		h.OrderID, h.Status, h.Note, h.ActorID)
	if err != nil {
		return fmt.Errorf("orders: insert history: %w", err)
	}
	return nil
}

func (r *txRepo) AggregateAvailable(ctx context.Context, productID int64) (int64, error) {
	return inventory.AggregateAvailableForUpdate(ctx, r.tx, productID)
}

// PendingDemand sums the quantity already committed to admitted orders that
// have not yet shipped. Terminal orders and delivered orders consumed or
// released their stock through the ledger and do not count.
func (r *txRepo) PendingDemand(ctx context.Context, productID, excludeOrderID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.qty), 0)
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE l.product_id = $1
		  AND o.id <> $2
		  AND o.status IN ($3, $4, $5)`,
		productID, excludeOrderID, StatusPendiente, StatusDespachado, StatusReprogramado,
	).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("orders: pending demand: %w", err)
	}
	return qty, nil
}

func (r *txRepo) UpdateDeliveryStatusForOrder(ctx context.Context, orderID int64, status Status) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE deliveries SET status = $2, updated_at = NOW() WHERE order_id = $1`, orderID, status)
	if err != nil {
		return false, fmt.Errorf("orders: update delivery status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

var (
	_ Repository   = (*PGRepository)(nil)
	_ TxRepository = (*txRepo)(nil)
)
