package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item, typically a bottle format.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Warehouse stores stock. Exactly one warehouse should be flagged central;
// the central warehouse receives returned goods.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsCentral bool      `json:"is_central"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer is an order recipient. DiscountPerUnit is subtracted from each
// line's resolved unit price, floored at zero.
type Customer struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Phone           string          `json:"phone"`
	Address         string          `json:"address"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Truck is a delivery vehicle.
type Truck struct {
	ID        int64     `json:"id"`
	Plate     string    `json:"plate"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Driver operates trucks and remits cash at end of day.
type Driver struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	License   string    `json:"license"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceType is a named pricing tier. A product may carry a fixed price per
// tier that overrides its base price.
type PriceType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductPrice is the fixed price of a product under a price type.
type ProductPrice struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	PriceTypeID int64           `json:"price_type_id"`
	Price       decimal.Decimal `json:"price"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
