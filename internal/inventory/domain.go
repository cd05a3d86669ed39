package inventory

import (
	"time"

	"github.com/ionlife/ionlife/internal/shared"
)

// MovementKind classifies a ledger entry.
type MovementKind string

// Movement kinds.
const (
	MovementIn         MovementKind = "IN"
	MovementOut        MovementKind = "OUT"
	MovementReturn     MovementKind = "RETURN"
	MovementAdjustment MovementKind = "ADJUSTMENT"
)

// Valid reports whether the kind is one of the known values.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementReturn, MovementAdjustment:
		return true
	}
	return false
}

// Movement is one immutable row of the stock ledger. Qty is a signed delta;
// corrections are new compensating rows, never updates.
type Movement struct {
	ID          int64        `json:"id"`
	WarehouseID int64        `json:"warehouse_id"`
	ProductID   int64        `json:"product_id"`
	Qty         int64        `json:"qty"`
	Kind        MovementKind `json:"kind"`
	OrderID     *int64       `json:"order_id,omitempty"`
	Note        string       `json:"note,omitempty"`
	ActorID     int64        `json:"actor_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StockLevel is the derived per-(warehouse, product) quantity. The ledger is
// the source of truth; this row is a cache equal to the sum of the pair's
// movement deltas.
type StockLevel struct {
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	Qty         int64     `json:"qty"`
	MinQty      int64     `json:"min_qty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MovementFilter narrows ledger queries. All predicates compile to bound
// parameters.
type MovementFilter struct {
	WarehouseID *int64
	ProductID   *int64
	Kind        *MovementKind
	OrderID     *int64
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// StockFilter narrows stock level queries.
type StockFilter struct {
	WarehouseID *int64
	ProductID   *int64
}

// MovementInput collects fields for recording a ledger entry.
type MovementInput struct {
	WarehouseID int64
	ProductID   int64
	Qty         int64
	Kind        MovementKind
	OrderID     *int64
	Note        string
	ActorID     int64
}

// ErrZeroQty rejects movements that change nothing.
var ErrZeroQty = shared.NewValidationError("qty", "must not be zero")
