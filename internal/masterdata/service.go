package masterdata

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/shared"
)

// Service wraps master data business rules.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService creates a new master data service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Product operations

func (s *Service) ListProducts(ctx context.Context, onlyActive bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, onlyActive)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id", "must be positive")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, actorID int64, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "product.create", "product", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actorID, id int64, p Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, id, p); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "product.update", "product", id, map[string]any{"name": p.Name, "is_active": p.IsActive})
	return nil
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.NewValidationError("name", "required")
	}
	if p.BasePrice.IsNegative() {
		return shared.NewValidationError("base_price", "must not be negative")
	}
	return nil
}

// Warehouse operations

func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.NewValidationError("id", "must be positive")
	}
	return s.repo.GetWarehouse(ctx, id)
}

// CentralWarehouse resolves the return destination warehouse.
func (s *Service) CentralWarehouse(ctx context.Context) (Warehouse, error) {
	return s.repo.CentralWarehouse(ctx)
}

func (s *Service) CreateWarehouse(ctx context.Context, actorID int64, w Warehouse) (Warehouse, error) {
	if strings.TrimSpace(w.Name) == "" {
		return Warehouse{}, shared.NewValidationError("name", "required")
	}
	created, err := s.repo.CreateWarehouse(ctx, w)
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, actorID, "warehouse.create", "warehouse", created.ID, map[string]any{"name": created.Name, "is_central": created.IsCentral})
	return created, nil
}

func (s *Service) UpdateWarehouse(ctx context.Context, actorID, id int64, w Warehouse) error {
	if strings.TrimSpace(w.Name) == "" {
		return shared.NewValidationError("name", "required")
	}
	if err := s.repo.UpdateWarehouse(ctx, id, w); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "warehouse.update", "warehouse", id, map[string]any{"name": w.Name, "is_central": w.IsCentral})
	return nil
}

// Customer operations

func (s *Service) ListCustomers(ctx context.Context, onlyActive bool) ([]Customer, error) {
	return s.repo.ListCustomers(ctx, onlyActive)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.NewValidationError("id", "must be positive")
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, actorID int64, c Customer) (Customer, error) {
	if err := validateCustomer(c); err != nil {
		return Customer{}, err
	}
	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, actorID, "customer.create", "customer", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, actorID, id int64, c Customer) error {
	if err := validateCustomer(c); err != nil {
		return err
	}
	if err := s.repo.UpdateCustomer(ctx, id, c); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "customer.update", "customer", id, map[string]any{"name": c.Name, "is_active": c.IsActive})
	return nil
}

func validateCustomer(c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewValidationError("name", "required")
	}
	if c.DiscountPerUnit.IsNegative() {
		return shared.NewValidationError("discount_per_unit", "must not be negative")
	}
	return nil
}

// Truck operations

func (s *Service) ListTrucks(ctx context.Context) ([]Truck, error) {
	return s.repo.ListTrucks(ctx)
}

func (s *Service) GetTruck(ctx context.Context, id int64) (Truck, error) {
	if id <= 0 {
		return Truck{}, shared.NewValidationError("id", "must be positive")
	}
	return s.repo.GetTruck(ctx, id)
}

func (s *Service) CreateTruck(ctx context.Context, actorID int64, t Truck) (Truck, error) {
	if strings.TrimSpace(t.Plate) == "" {
		return Truck{}, shared.NewValidationError("plate", "required")
	}
	created, err := s.repo.CreateTruck(ctx, t)
	if err != nil {
		return Truck{}, err
	}
	s.recordAudit(ctx, actorID, "truck.create", "truck", created.ID, map[string]any{"plate": created.Plate})
	return created, nil
}

func (s *Service) UpdateTruck(ctx context.Context, actorID, id int64, t Truck) error {
	if strings.TrimSpace(t.Plate) == "" {
		return shared.NewValidationError("plate", "required")
	}
	if err := s.repo.UpdateTruck(ctx, id, t); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "truck.update", "truck", id, map[string]any{"plate": t.Plate, "is_active": t.IsActive})
	return nil
}

// Driver operations

func (s *Service) ListDrivers(ctx context.Context) ([]Driver, error) {
	return s.repo.ListDrivers(ctx)
}

func (s *Service) GetDriver(ctx context.Context, id int64) (Driver, error) {
	if id <= 0 {
		return Driver{}, shared.NewValidationError("id", "must be positive")
	}
	return s.repo.GetDriver(ctx, id)
}

func (s *Service) CreateDriver(ctx context.Context, actorID int64, d Driver) (Driver, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Driver{}, shared.NewValidationError("name", "required")
	}
	created, err := s.repo.CreateDriver(ctx, d)
	if err != nil {
		return Driver{}, err
	}
	s.recordAudit(ctx, actorID, "driver.create", "driver", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

func (s *Service) UpdateDriver(ctx context.Context, actorID, id int64, d Driver) error {
	if strings.TrimSpace(d.Name) == "" {
		return shared.NewValidationError("name", "required")
	}
	if err := s.repo.UpdateDriver(ctx, id, d); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "driver.update", "driver", id, map[string]any{"name": d.Name, "is_active": d.IsActive})
	return nil
}

// Price type operations

func (s *Service) ListPriceTypes(ctx context.Context) ([]PriceType, error) {
	return s.repo.ListPriceTypes(ctx)
}

func (s *Service) CreatePriceType(ctx context.Context, actorID int64, pt PriceType) (PriceType, error) {
	if strings.TrimSpace(pt.Name) == "" {
		return PriceType{}, shared.NewValidationError("name", "required")
	}
	created, err := s.repo.CreatePriceType(ctx, pt)
	if err != nil {
		return PriceType{}, err
	}
	s.recordAudit(ctx, actorID, "price_type.create", "price_type", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

func (s *Service) ListProductPrices(ctx context.Context, priceTypeID int64) ([]ProductPrice, error) {
	if priceTypeID <= 0 {
		return nil, shared.NewValidationError("price_type_id", "must be positive")
	}
	return s.repo.ListProductPrices(ctx, priceTypeID)
}

// GetActiveProductPrice looks up the fixed price for (product, price type).
// Callers treat a missing mapping as a hard validation failure, never as a
// fallback to the base price.
func (s *Service) GetActiveProductPrice(ctx context.Context, productID, priceTypeID int64) (ProductPrice, error) {
	return s.repo.GetActiveProductPrice(ctx, productID, priceTypeID)
}

func (s *Service) UpsertProductPrice(ctx context.Context, actorID int64, pp ProductPrice) (ProductPrice, error) {
	if pp.ProductID <= 0 {
		return ProductPrice{}, shared.NewValidationError("product_id", "must be positive")
	}
	if pp.PriceTypeID <= 0 {
		return ProductPrice{}, shared.NewValidationError("price_type_id", "must be positive")
	}
	if pp.Price.Cmp(decimal.Zero) <= 0 {
		return ProductPrice{}, shared.NewValidationError("price", "must be positive")
	}
	saved, err := s.repo.UpsertProductPrice(ctx, pp)
	if err != nil {
		return ProductPrice{}, err
	}
	s.recordAudit(ctx, actorID, "product_price.upsert", "product_price", saved.ID, map[string]any{
		"product_id":    saved.ProductID,
		"price_type_id": saved.PriceTypeID,
		"price":         saved.Price.String(),
	})
	return saved, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
