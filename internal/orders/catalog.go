package orders

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/masterdata"
)

// CatalogProduct is the directory view of a product needed for admission.
type CatalogProduct struct {
	ID        int64
	Name      string
	BasePrice decimal.Decimal
	IsActive  bool
}

// CatalogCustomer is the directory view of a customer.
type CatalogCustomer struct {
	ID              int64
	Name            string
	Address         string
	DiscountPerUnit decimal.Decimal
	IsActive        bool
}

// Catalog supplies read-only directory lookups. FixedPrice returns
// shared.ErrNotFound when no active mapping exists for the pair.
type Catalog interface {
	Product(ctx context.Context, id int64) (CatalogProduct, error)
	Customer(ctx context.Context, id int64) (CatalogCustomer, error)
	FixedPrice(ctx context.Context, productID, priceTypeID int64) (decimal.Decimal, error)
}

// masterdataCatalog adapts the master data service to the Catalog port.
type masterdataCatalog struct {
	service *masterdata.Service
}

// NewCatalog wraps the master data service for order admission.
func NewCatalog(service *masterdata.Service) Catalog {
	return &masterdataCatalog{service: service}
}

func (c *masterdataCatalog) Product(ctx context.Context, id int64) (CatalogProduct, error) {
	p, err := c.service.GetProduct(ctx, id)
	if err != nil {
		return CatalogProduct{}, err
	}
	return CatalogProduct{ID: p.ID, Name: p.Name, BasePrice: p.BasePrice, IsActive: p.IsActive}, nil
}

func (c *masterdataCatalog) Customer(ctx context.Context, id int64) (CatalogCustomer, error) {
	cust, err := c.service.GetCustomer(ctx, id)
	if err != nil {
		return CatalogCustomer{}, err
	}
	return CatalogCustomer{
		ID:              cust.ID,
		Name:            cust.Name,
		Address:         cust.Address,
		DiscountPerUnit: cust.DiscountPerUnit,
		IsActive:        cust.IsActive,
	}, nil
}

func (c *masterdataCatalog) FixedPrice(ctx context.Context, productID, priceTypeID int64) (decimal.Decimal, error) {
	pp, err := c.service.GetActiveProductPrice(ctx, productID, priceTypeID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return pp.Price, nil
}
