package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/shared"
)

// Service implements order admission, pricing resolution and the portions of
// the state machine not driven by logistics.
type Service struct {
	repo    Repository
	catalog Catalog
	audit   *shared.AuditLogger
	logger  *slog.Logger
}

// NewService constructs the orders service.
func NewService(repo Repository, catalog Catalog, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, logger: logger}
}

// resolvedLine pairs a priced line with its product name for shortage detail.
type resolvedLine struct {
	line OrderLine
	name string
}

// CreateOrder validates, prices and persists an order atomically. Admission
// requires every product's aggregate availability to cover the order's total
// requirement; any deficit fails the whole call with a shortage list.
func (s *Service) CreateOrder(ctx context.Context, actorID int64, input CreateOrderInput) (Order, error) {
	if input.CustomerID <= 0 {
		return Order{}, shared.NewValidationError("customer_id", "must be positive")
	}
	if len(input.Lines) == 0 {
		return Order{}, shared.NewValidationError("lines", "at least one line is required")
	}

	customer, err := s.catalog.Customer(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Order{}, shared.NewValidationError("customer_id", "unknown customer")
		}
		return Order{}, err
	}
	if !customer.IsActive {
		return Order{}, shared.NewValidationError("customer_id", "customer is inactive")
	}

	resolved, err := s.resolveLines(ctx, customer, input.Lines)
	if err != nil {
		return Order{}, err
	}

	address := input.Address
	if address == "" {
		address = customer.Address
	}
	scheduled := input.ScheduledDate
	if scheduled.IsZero() {
		scheduled = time.Now().Truncate(24 * time.Hour)
	}

	order := Order{
		CustomerID:    input.CustomerID,
		Address:       address,
		Status:        StatusPendiente,
		PaymentMethod: input.PaymentMethod,
		Priority:      input.Priority,
		Notes:         input.Notes,
		ScheduledDate: scheduled,
		CreatedBy:     actorID,
		UpdatedBy:     actorID,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkAvailability(ctx, tx, 0, resolved); err != nil {
			return err
		}
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		lines := make([]OrderLine, 0, len(resolved))
		for _, rl := range resolved {
			lines = append(lines, rl.line)
		}
		if err := tx.InsertLines(ctx, id, lines); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, StatusHistory{OrderID: id, Status: StatusPendiente, Note: "order created", ActorID: actorID}); err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	created, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "order.create", orderID, map[string]any{
		"customer_id": created.CustomerID,
		"total":       created.Total.String(),
		"lines":       len(created.Lines),
	})
	return created, nil
}

// UpdateOrder re-runs the validation and pricing pipeline and replaces all
// lines transactionally. Terminal orders reject the edit.
func (s *Service) UpdateOrder(ctx context.Context, actorID, orderID int64, input UpdateOrderInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, shared.NewValidationError("lines", "at least one line is required")
	}

	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	customer, err := s.catalog.Customer(ctx, current.CustomerID)
	if err != nil {
		return Order{}, err
	}
	resolved, err := s.resolveLines(ctx, customer, input.Lines)
	if err != nil {
		return Order{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanEdit() {
			return &shared.StateError{Entity: "order", Current: string(order.Status), Attempted: "edit"}
		}
		if err := s.checkAvailability(ctx, tx, orderID, resolved); err != nil {
			return err
		}
		order.Address = input.Address
		if order.Address == "" {
			order.Address = customer.Address
		}
		order.PaymentMethod = input.PaymentMethod
		order.Priority = input.Priority
		order.Notes = input.Notes
		if !input.ScheduledDate.IsZero() {
			order.ScheduledDate = input.ScheduledDate
		}
		order.UpdatedBy = actorID
		if err := tx.UpdateOrderHeader(ctx, order); err != nil {
			return err
		}
		lines := make([]OrderLine, 0, len(resolved))
		for _, rl := range resolved {
			lines = append(lines, rl.line)
		}
		return tx.ReplaceLines(ctx, orderID, lines)
	})
	if err != nil {
		return Order{}, err
	}

	updated, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "order.update", orderID, map[string]any{
		"total": updated.Total.String(),
		"lines": len(updated.Lines),
	})
	return updated, nil
}

// Cancel moves an order to Cancelado. No stock reversal happens here:
// cancellation before delivery never produced an OUT movement.
func (s *Service) Cancel(ctx context.Context, actorID, orderID int64, note string) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(StatusCancelado) {
			return &shared.StateError{Entity: "order", Current: string(order.Status), Attempted: string(StatusCancelado)}
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, StatusCancelado, actorID); err != nil {
			return err
		}
		if _, err := tx.UpdateDeliveryStatusForOrder(ctx, orderID, StatusCancelado); err != nil {
			return err
		}
		return tx.InsertHistory(ctx, StatusHistory{OrderID: orderID, Status: StatusCancelado, Note: note, ActorID: actorID})
	})
	if err != nil {
		return Order{}, err
	}

	cancelled, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "order.cancel", orderID, map[string]any{"note": note})
	return cancelled, nil
}

// GetOrder loads an order with lines and its status history.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, []StatusHistory, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, history, nil
}

// ListOrders returns a filtered page.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.NewValidationError("status", "unknown status")
	}
	return s.repo.ListOrders(ctx, filter)
}

// resolveLines validates each requested line and freezes its unit price.
// A price-type id demands an active fixed price for that exact pair; a
// missing mapping is a hard error, never a fallback. Without a price type
// the caller-supplied price must be positive. The customer's per-unit
// discount is subtracted, floored at zero.
func (s *Service) resolveLines(ctx context.Context, customer CatalogCustomer, inputs []LineInput) ([]resolvedLine, error) {
	resolved := make([]resolvedLine, 0, len(inputs))
	for i, in := range inputs {
		field := "lines[" + strconv.Itoa(i) + "]"
		if in.ProductID <= 0 {
			return nil, shared.NewValidationError(field+".product_id", "must be positive")
		}
		if in.Qty <= 0 {
			return nil, shared.NewValidationError(field+".qty", "must be positive")
		}
		if in.PriceTypeID != nil && *in.PriceTypeID <= 0 {
			return nil, shared.NewValidationError(field+".price_type_id", "must be positive")
		}

		product, err := s.catalog.Product(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewValidationError(field+".product_id", "unknown product")
			}
			return nil, err
		}
		if !product.IsActive {
			return nil, shared.NewValidationError(field+".product_id", fmt.Sprintf("product %q is inactive", product.Name))
		}

		var unitPrice decimal.Decimal
		if in.PriceTypeID != nil {
			fixed, err := s.catalog.FixedPrice(ctx, in.ProductID, *in.PriceTypeID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return nil, shared.NewValidationError(field+".price_type_id",
						fmt.Sprintf("product %q has no price for the selected price type", product.Name))
				}
				return nil, err
			}
			unitPrice = fixed
		} else {
			if in.UnitPrice.Cmp(decimal.Zero) <= 0 {
				return nil, shared.NewValidationError(field+".unit_price", "must be positive when no price type is given")
			}
			unitPrice = in.UnitPrice
		}

		frozen := unitPrice.Sub(customer.DiscountPerUnit)
		if frozen.IsNegative() {
			frozen = decimal.Zero
		}

		resolved = append(resolved, resolvedLine{
			line: OrderLine{
				ProductID:       in.ProductID,
				Qty:             in.Qty,
				UnitPrice:       frozen,
				PriceTypeID:     in.PriceTypeID,
				DiscountPerUnit: customer.DiscountPerUnit,
			},
			name: product.Name,
		})
	}
	return resolved, nil
}

// checkAvailability aggregates the requirement per product and compares it
// against locked aggregate availability minus the demand already committed to
// other unshipped orders. Stock of 10 with an admitted 10-unit order still
// pending rejects a further 1-unit order as {available:10, required:11}.
// Products are visited in id order so concurrent admissions lock rows
// consistently.
func (s *Service) checkAvailability(ctx context.Context, tx TxRepository, excludeOrderID int64, resolved []resolvedLine) error {
	required := make(map[int64]int64)
	names := make(map[int64]string)
	for _, rl := range resolved {
		required[rl.line.ProductID] += rl.line.Qty
		names[rl.line.ProductID] = rl.name
	}
	productIDs := make([]int64, 0, len(required))
	for pid := range required {
		productIDs = append(productIDs, pid)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	var shortages []Shortage
	for _, pid := range productIDs {
		available, err := tx.AggregateAvailable(ctx, pid)
		if err != nil {
			return err
		}
		pending, err := tx.PendingDemand(ctx, pid, excludeOrderID)
		if err != nil {
			return err
		}
		if total := pending + required[pid]; available < total {
			shortages = append(shortages, Shortage{
				ProductID: pid,
				Name:      names[pid],
				Available: available,
				Required:  total,
			})
		}
	}
	if len(shortages) > 0 {
		return &shared.ConflictError{
			Reason: "insufficient stock",
			Meta:   map[string]any{"shortages": shortages},
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
