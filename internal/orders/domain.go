package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

// Order statuses. Entregado and Cancelado are terminal; Reprogramado is
// reached only through the returns workflow and may re-enter the flow.
const (
	StatusPendiente    Status = "Pendiente"
	StatusDespachado   Status = "Despachado"
	StatusEntregado    Status = "Entregado"
	StatusCancelado    Status = "Cancelado"
	StatusReprogramado Status = "Reprogramado"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPendiente, StatusDespachado, StatusEntregado, StatusCancelado, StatusReprogramado:
		return true
	}
	return false
}

// Terminal reports whether the status closes the order for editing.
func (s Status) Terminal() bool {
	return s == StatusEntregado || s == StatusCancelado
}

// CanEdit reports whether order lines may still change.
func (s Status) CanEdit() bool { return !s.Terminal() }

var transitions = map[Status][]Status{
	StatusPendiente:    {StatusDespachado, StatusCancelado},
	StatusDespachado:   {StatusEntregado, StatusCancelado, StatusReprogramado},
	StatusEntregado:    {StatusReprogramado},
	StatusReprogramado: {StatusPendiente, StatusDespachado, StatusCancelado},
}

// CanTransition reports whether the state machine allows moving to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ===== ORDER =====

// Order is the sales order aggregate root.
type Order struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Address       string          `json:"address"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	Priority      string          `json:"priority"`
	Notes         string          `json:"notes"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Total         decimal.Decimal `json:"total"`
	Lines         []OrderLine     `json:"lines,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	UpdatedBy     int64           `json:"updated_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderLine carries a frozen unit price resolved at creation or edit time.
type OrderLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name,omitempty"`
	Qty             int64           `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PriceTypeID     *int64          `json:"price_type_id,omitempty"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
}

// LineTotal is qty times the frozen unit price.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Qty))
}

func linesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// StatusHistory is the immutable audit trail of transitions.
type StatusHistory struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	ActorID   int64     `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Shortage names a product whose availability cannot cover the requirement.
type Shortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Available int64  `json:"available"`
	Required  int64  `json:"required"`
}

// ===== INPUTS =====

// LineInput is one requested order line before price resolution.
type LineInput struct {
	ProductID   int64           `json:"product_id"`
	Qty         int64           `json:"qty"`
	PriceTypeID *int64          `json:"price_type_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CreateOrderInput collects fields for order admission.
type CreateOrderInput struct {
	CustomerID    int64
	Address       string
	PaymentMethod string
	Priority      string
	Notes         string
	ScheduledDate time.Time
	Lines         []LineInput
}

// UpdateOrderInput repeats the admission pipeline over an existing order.
type UpdateOrderInput struct {
	Address       string
	PaymentMethod string
	Priority      string
	Notes         string
	ScheduledDate time.Time
	Lines         []LineInput
}

// OrderFilter narrows listings. All predicates bind as parameters.
type OrderFilter struct {
	Status     *Status
	CustomerID *int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}
