package logistics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/orders"
)

// Delivery ties an order to a truck and driver for one fulfillment attempt.
// Its status mirrors the order's through the fulfillment transitions.
type Delivery struct {
	ID          int64         `json:"id"`
	OrderID     int64         `json:"order_id"`
	TruckID     int64         `json:"truck_id"`
	DriverID    int64         `json:"driver_id"`
	Status      orders.Status `json:"status"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	CreatedBy   int64         `json:"created_by"`
	UpdatedBy   int64         `json:"updated_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DeliveryIncident records something that went wrong on the road.
type DeliveryIncident struct {
	ID          int64     `json:"id"`
	DeliveryID  int64     `json:"delivery_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	ActorID     int64     `json:"actor_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expenses is the driver's expense breakdown for a settlement.
type Expenses struct {
	Fuel  decimal.Decimal `json:"fuel"`
	Meal  decimal.Decimal `json:"meal"`
	Other decimal.Decimal `json:"other"`
}

// Total sums the breakdown.
func (e Expenses) Total() decimal.Decimal {
	return e.Fuel.Add(e.Meal).Add(e.Other)
}

// ReturnSettlement is the persisted outcome of a return-and-reconcile call.
type ReturnSettlement struct {
	ID         int64           `json:"id"`
	Reference  string          `json:"reference"`
	OrderID    int64           `json:"order_id"`
	DeliveryID int64           `json:"delivery_id"`
	TruckID    int64           `json:"truck_id"`
	DriverID   int64           `json:"driver_id"`
	CashAmount decimal.Decimal `json:"cash_amount"`
	Expected   decimal.Decimal `json:"expected_amount"`
	Expenses   Expenses        `json:"expenses"`
	SettledOn  time.Time       `json:"settled_on"`
	ActorID    int64           `json:"actor_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ===== INPUTS =====

// AssignInput requests a single delivery assignment.
type AssignInput struct {
	OrderID     int64     `json:"order_id"`
	TruckID     int64     `json:"truck_id"`
	DriverID    int64     `json:"driver_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// BulkAssignInput requests assignment of a batch of orders to one truck.
type BulkAssignInput struct {
	OrderIDs []int64 `json:"order_ids"`
	TruckID  int64   `json:"truck_id"`
	DriverID int64   `json:"driver_id"`
}

// BulkAssignResult reports partial success: skipped orders stay untouched.
type BulkAssignResult struct {
	Assigned        int     `json:"assigned"`
	Skipped         int     `json:"skipped"`
	SkippedOrderIDs []int64 `json:"skipped_order_ids,omitempty"`
}

// ReturnInput requests the coupled return-and-reconcile operation.
type ReturnInput struct {
	OrderID    int64           `json:"order_id"`
	TruckID    int64           `json:"truck_id"`
	CashAmount decimal.Decimal `json:"cash_amount"`
	Expenses   Expenses        `json:"expenses"`
}

// IncidentInput records a delivery incident.
type IncidentInput struct {
	DeliveryID  int64  `json:"delivery_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// DeliveryFilter narrows delivery listings.
type DeliveryFilter struct {
	TruckID  *int64
	DriverID *int64
	Status   *orders.Status
	Date     time.Time
}

// ===== ROUTE SHEET =====

// RouteStop is one order on a truck's route sheet for a day.
type RouteStop struct {
	DeliveryID   int64           `json:"delivery_id"`
	OrderID      int64           `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	Address      string          `json:"address"`
	Status       orders.Status   `json:"status"`
	Items        int64           `json:"items"`
	Total        decimal.Decimal `json:"total"`
	DisplayTotal string          `json:"display_total"`
}

// TruckSummary aggregates a truck's day.
type TruckSummary struct {
	TruckID     int64           `json:"truck_id"`
	Date        time.Time       `json:"date"`
	TotalOrders int64           `json:"total_orders"`
	TotalItems  int64           `json:"total_items"`
	TotalValue  decimal.Decimal `json:"total_value"`
}
