package logistics

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/masterdata"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/shared"
)

// Directory supplies the fleet and warehouse lookups fulfillment needs.
type Directory interface {
	Truck(ctx context.Context, id int64) (masterdata.Truck, error)
	Driver(ctx context.Context, id int64) (masterdata.Driver, error)
	CentralWarehouseID(ctx context.Context) (int64, error)
}

// masterdataDirectory adapts the master data service to the Directory port.
type masterdataDirectory struct {
	service *masterdata.Service
}

// NewDirectory wraps the master data service for fulfillment.
func NewDirectory(service *masterdata.Service) Directory {
	return &masterdataDirectory{service: service}
}

func (d *masterdataDirectory) Truck(ctx context.Context, id int64) (masterdata.Truck, error) {
	return d.service.GetTruck(ctx, id)
}

func (d *masterdataDirectory) Driver(ctx context.Context, id int64) (masterdata.Driver, error) {
	return d.service.GetDriver(ctx, id)
}

func (d *masterdataDirectory) CentralWarehouseID(ctx context.Context) (int64, error) {
	w, err := d.service.CentralWarehouse(ctx)
	if err != nil {
		return 0, err
	}
	return w.ID, nil
}

// Service drives delivery assignment, confirmation and the returns workflow.
// It owns the Despachado, Entregado and Reprogramado transitions.
type Service struct {
	repo      Repository
	directory Directory
	audit     *shared.AuditLogger
	logger    *slog.Logger
	printer   *message.Printer
}

// NewService constructs the logistics service.
func NewService(repo Repository, directory Directory, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		audit:     audit,
		logger:    logger,
		printer:   message.NewPrinter(language.Spanish),
	}
}

// AssignSingle dispatches one order. A first dispatch creates the delivery
// row; re-dispatching a Reprogramado order refreshes the existing row with
// the new truck, driver and schedule.
func (s *Service) AssignSingle(ctx context.Context, actorID int64, input AssignInput) (Delivery, error) {
	if err := s.validateFleet(ctx, input.TruckID, input.DriverID); err != nil {
		return Delivery{}, err
	}
	scheduledAt := input.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	var delivery Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := s.assignInTx(ctx, tx, actorID, input.OrderID, input.TruckID, input.DriverID, scheduledAt)
		if err != nil {
			return err
		}
		delivery = d
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}
	s.recordAudit(ctx, actorID, "delivery.assign", delivery.ID, map[string]any{
		"order_id": input.OrderID,
		"truck_id": input.TruckID,
	})
	return delivery, nil
}

// AssignBulk dispatches a batch to one truck. Orders that cannot be
// dispatched are skipped and counted; an order's failure never rolls back
// the ones already assigned.
func (s *Service) AssignBulk(ctx context.Context, actorID int64, input BulkAssignInput) (BulkAssignResult, error) {
	if len(input.OrderIDs) == 0 {
		return BulkAssignResult{}, shared.NewValidationError("order_ids", "at least one order is required")
	}
	if err := s.validateFleet(ctx, input.TruckID, input.DriverID); err != nil {
		return BulkAssignResult{}, err
	}

	var result BulkAssignResult
	scheduledAt := time.Now()
	for _, orderID := range input.OrderIDs {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := s.assignInTx(ctx, tx, actorID, orderID, input.TruckID, input.DriverID, scheduledAt)
			return err
		})
		if err != nil {
			result.Skipped++
			result.SkippedOrderIDs = append(result.SkippedOrderIDs, orderID)
			if s.logger != nil {
				s.logger.Info("bulk assign skipped order",
					slog.Int64("order_id", orderID), slog.Any("reason", err))
			}
			continue
		}
		result.Assigned++
	}
	s.recordAudit(ctx, actorID, "delivery.assign_bulk", input.TruckID, map[string]any{
		"assigned": result.Assigned,
		"skipped":  result.Skipped,
	})
	return result, nil
}

func (s *Service) assignInTx(ctx context.Context, tx TxRepository, actorID, orderID, truckID, driverID int64, scheduledAt time.Time) (Delivery, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}
	if !order.Status.CanTransition(orders.StatusDespachado) {
		return Delivery{}, &shared.StateError{Entity: "order", Current: string(order.Status), Attempted: string(orders.StatusDespachado)}
	}
	existing, exists, err := tx.DeliveryByOrderForUpdate(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}

	var delivery Delivery
	note := "assigned to truck " + strconv.FormatInt(truckID, 10)
	if exists {
		// One delivery row per order: a return leaves the row behind, so a
		// re-dispatch refreshes it instead of inserting a second one. The
		// transition check above already rejected anything not eligible.
		delivery = existing
		delivery.TruckID = truckID
		delivery.DriverID = driverID
		delivery.Status = orders.StatusDespachado
		delivery.ScheduledAt = scheduledAt
		delivery.DeliveredAt = nil
		delivery.UpdatedBy = actorID
		if err := tx.UpdateDelivery(ctx, delivery); err != nil {
			return Delivery{}, err
		}
		note = "reassigned to truck " + strconv.FormatInt(truckID, 10)
	} else {
		delivery = Delivery{
			OrderID:     orderID,
			TruckID:     truckID,
			DriverID:    driverID,
			Status:      orders.StatusDespachado,
			ScheduledAt: scheduledAt,
			CreatedBy:   actorID,
			UpdatedBy:   actorID,
		}
		id, err := tx.InsertDelivery(ctx, delivery)
		if err != nil {
			return Delivery{}, err
		}
		delivery.ID = id
	}
	if err := tx.UpdateOrderStatus(ctx, orderID, orders.StatusDespachado, actorID); err != nil {
		return Delivery{}, err
	}
	if err := tx.InsertHistory(ctx, orders.StatusHistory{
		OrderID: orderID, Status: orders.StatusDespachado,
		Note: note, ActorID: actorID,
	}); err != nil {
		return Delivery{}, err
	}
	return delivery, nil
}

// ConfirmDelivery moves an order to Entregado, writing one OUT movement per
// line. Confirming an already-delivered order is a no-op beyond status
// bookkeeping: the open OUT movements make the call idempotent. Once a
// return compensates those movements the short path closes, so a returned
// order must be dispatched again before it can be confirmed.
func (s *Service) ConfirmDelivery(ctx context.Context, actorID, orderID int64) (Delivery, error) {
	var delivery Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		d, exists, err := tx.DeliveryByOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !exists {
			return &shared.NotFoundError{Entity: "delivery for order", ID: orderID}
		}

		shipped, err := tx.HasOpenOut(ctx, orderID)
		if err != nil {
			return err
		}
		if shipped {
			delivery, err = s.stampDelivered(ctx, tx, actorID, order, d, "delivery re-confirmed")
			return err
		}

		if !order.Status.CanTransition(orders.StatusEntregado) {
			return &shared.StateError{Entity: "order", Current: string(order.Status), Attempted: string(orders.StatusEntregado)}
		}
		if err := s.shipLines(ctx, tx, actorID, order); err != nil {
			return err
		}
		delivery, err = s.stampDelivered(ctx, tx, actorID, order, d, "delivery confirmed")
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.recordAudit(ctx, actorID, "delivery.confirm", delivery.ID, map[string]any{"order_id": orderID})
	return delivery, nil
}

// shipLines checks every line against its chosen source warehouse, then
// writes the OUT movements. The check pass completes before the first write
// so a shortfall leaves the ledger untouched.
func (s *Service) shipLines(ctx context.Context, tx TxRepository, actorID int64, order orders.Order) error {
	required := make(map[int64]int64)
	for _, l := range order.Lines {
		required[l.ProductID] += l.Qty
	}
	productIDs := make([]int64, 0, len(required))
	for pid := range required {
		productIDs = append(productIDs, pid)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	sources := make(map[int64]int64, len(required))
	var shortages []orders.Shortage
	for _, pid := range productIDs {
		warehouseID, qty, err := tx.PickSource(ctx, pid)
		if err != nil {
			return err
		}
		if warehouseID == 0 || qty < required[pid] {
			shortages = append(shortages, orders.Shortage{
				ProductID: pid,
				Available: qty,
				Required:  required[pid],
			})
			continue
		}
		sources[pid] = warehouseID
	}
	if len(shortages) > 0 {
		return &shared.ConflictError{
			Reason: "insufficient warehouse stock",
			Meta:   map[string]any{"shortages": shortages},
		}
	}

	for _, l := range order.Lines {
		oid := order.ID
		if _, err := tx.ApplyMovement(ctx, inventory.Movement{
			WarehouseID: sources[l.ProductID],
			ProductID:   l.ProductID,
			Qty:         -l.Qty,
			Kind:        inventory.MovementOut,
			OrderID:     &oid,
			ActorID:     actorID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) stampDelivered(ctx context.Context, tx TxRepository, actorID int64, order orders.Order, d Delivery, note string) (Delivery, error) {
	now := time.Now()
	if d.DeliveredAt == nil {
		d.DeliveredAt = &now
	}
	d.Status = orders.StatusEntregado
	d.UpdatedBy = actorID
	if err := tx.UpdateDelivery(ctx, d); err != nil {
		return Delivery{}, err
	}
	if order.Status != orders.StatusEntregado {
		if err := tx.UpdateOrderStatus(ctx, order.ID, orders.StatusEntregado, actorID); err != nil {
			return Delivery{}, err
		}
	}
	if err := tx.InsertHistory(ctx, orders.StatusHistory{
		OrderID: order.ID, Status: orders.StatusEntregado, Note: note, ActorID: actorID,
	}); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

// RecordReturn credits the central warehouse with a RETURN movement per line,
// reschedules the order and reconciles the driver's cash for the whole truck
// in one call. The cash check runs before the first write: a mismatch rejects
// the call with zero rows touched.
func (s *Service) RecordReturn(ctx context.Context, actorID int64, input ReturnInput) (ReturnSettlement, error) {
	if input.Expenses.Fuel.IsNegative() || input.Expenses.Meal.IsNegative() || input.Expenses.Other.IsNegative() {
		return ReturnSettlement{}, shared.NewValidationError("expenses", "must not be negative")
	}
	centralID, err := s.directory.CentralWarehouseID(ctx)
	if err != nil {
		return ReturnSettlement{}, err
	}

	var settlement ReturnSettlement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		delivery, exists, err := tx.DeliveryByOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return &shared.NotFoundError{Entity: "delivery for order", ID: input.OrderID}
		}
		if !order.Status.CanTransition(orders.StatusReprogramado) {
			return &shared.StateError{Entity: "order", Current: string(order.Status), Attempted: string(orders.StatusReprogramado)}
		}

		// Settlement covers every order this truck delivered today, not
		// just the one being returned.
		from, to := dayBounds(time.Now())
		deliveredTotal, err := tx.DeliveredSalesTotal(ctx, input.TruckID, from, to)
		if err != nil {
			return err
		}
		expected := deliveredTotal.Sub(input.Expenses.Total())
		if expected.IsNegative() {
			expected = decimal.Zero
		}
		if !input.CashAmount.Round(2).Equal(expected.Round(2)) {
			return &shared.ConflictError{
				Reason: "cash mismatch",
				Meta: map[string]any{
					"expected": expected.StringFixed(2),
					"given":    input.CashAmount.StringFixed(2),
				},
			}
		}

		for _, l := range order.Lines {
			oid := order.ID
			if _, err := tx.ApplyMovement(ctx, inventory.Movement{
				WarehouseID: centralID,
				ProductID:   l.ProductID,
				Qty:         l.Qty,
				Kind:        inventory.MovementReturn,
				OrderID:     &oid,
				ActorID:     actorID,
			}); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, orders.StatusReprogramado, actorID); err != nil {
			return err
		}
		delivery.Status = orders.StatusReprogramado
		delivery.UpdatedBy = actorID
		if err := tx.UpdateDelivery(ctx, delivery); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, orders.StatusHistory{
			OrderID: order.ID, Status: orders.StatusReprogramado, Note: "returned to central warehouse", ActorID: actorID,
		}); err != nil {
			return err
		}

		settlement, err = tx.InsertSettlement(ctx, ReturnSettlement{
			Reference:  uuid.NewString(),
			OrderID:    order.ID,
			DeliveryID: delivery.ID,
			TruckID:    input.TruckID,
			DriverID:   delivery.DriverID,
			CashAmount: input.CashAmount.Round(2),
			Expected:   expected.Round(2),
			Expenses:   input.Expenses,
			SettledOn:  from,
			ActorID:    actorID,
		})
		return err
	})
	if err != nil {
		return ReturnSettlement{}, err
	}
	s.recordAudit(ctx, actorID, "delivery.return", settlement.DeliveryID, map[string]any{
		"order_id":  settlement.OrderID,
		"reference": settlement.Reference,
		"cash":      settlement.CashAmount.String(),
	})
	return settlement, nil
}

// RecordIncident appends an incident to an existing delivery.
func (s *Service) RecordIncident(ctx context.Context, actorID int64, input IncidentInput) (DeliveryIncident, error) {
	if input.Kind == "" {
		return DeliveryIncident{}, shared.NewValidationError("kind", "is required")
	}
	if _, err := s.repo.GetDelivery(ctx, input.DeliveryID); err != nil {
		return DeliveryIncident{}, err
	}
	inc, err := s.repo.InsertIncident(ctx, DeliveryIncident{
		DeliveryID:  input.DeliveryID,
		Kind:        input.Kind,
		Description: input.Description,
		ActorID:     actorID,
	})
	if err != nil {
		return DeliveryIncident{}, err
	}
	s.recordAudit(ctx, actorID, "delivery.incident", input.DeliveryID, map[string]any{"kind": input.Kind})
	return inc, nil
}

// GetDelivery loads a delivery with its incidents.
func (s *Service) GetDelivery(ctx context.Context, id int64) (Delivery, []DeliveryIncident, error) {
	d, err := s.repo.GetDelivery(ctx, id)
	if err != nil {
		return Delivery{}, nil, err
	}
	incidents, err := s.repo.ListIncidents(ctx, id)
	if err != nil {
		return Delivery{}, nil, err
	}
	return d, incidents, nil
}

// ListDeliveries returns deliveries matching the filter.
func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error) {
	return s.repo.ListDeliveries(ctx, filter)
}

// TruckOrders builds a truck's route sheet for a day with localized totals.
func (s *Service) TruckOrders(ctx context.Context, truckID int64, day time.Time) ([]RouteStop, error) {
	if _, err := s.directory.Truck(ctx, truckID); err != nil {
		return nil, err
	}
	stops, err := s.repo.TruckRoute(ctx, truckID, day)
	if err != nil {
		return nil, err
	}
	for i := range stops {
		stops[i].DisplayTotal = s.printer.Sprintf("S/ %.2f", stops[i].Total.InexactFloat64())
	}
	return stops, nil
}

// TruckSummary aggregates a truck's day.
func (s *Service) TruckSummary(ctx context.Context, truckID int64, day time.Time) (TruckSummary, error) {
	if _, err := s.directory.Truck(ctx, truckID); err != nil {
		return TruckSummary{}, err
	}
	return s.repo.TruckSummary(ctx, truckID, day)
}

// ListSettlements returns a truck's settlements for one day.
func (s *Service) ListSettlements(ctx context.Context, truckID int64, day time.Time) ([]ReturnSettlement, error) {
	return s.repo.ListSettlements(ctx, truckID, day)
}

func (s *Service) validateFleet(ctx context.Context, truckID, driverID int64) error {
	if _, err := s.directory.Truck(ctx, truckID); err != nil {
		return err
	}
	if _, err := s.directory.Driver(ctx, driverID); err != nil {
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "delivery",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
