package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ionlife/ionlife/internal/shared"
)

// Repository defines persistence for master data entities.
type Repository interface {
	ListProducts(ctx context.Context, onlyActive bool) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, p Product) error

	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	CentralWarehouse(ctx context.Context) (Warehouse, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
	UpdateWarehouse(ctx context.Context, id int64, w Warehouse) error

	ListCustomers(ctx context.Context, onlyActive bool) ([]Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, id int64, c Customer) error

	ListTrucks(ctx context.Context) ([]Truck, error)
	GetTruck(ctx context.Context, id int64) (Truck, error)
	CreateTruck(ctx context.Context, t Truck) (Truck, error)
	UpdateTruck(ctx context.Context, id int64, t Truck) error

	ListDrivers(ctx context.Context) ([]Driver, error)
	GetDriver(ctx context.Context, id int64) (Driver, error)
	CreateDriver(ctx context.Context, d Driver) (Driver, error)
	UpdateDriver(ctx context.Context, id int64, d Driver) error

	ListPriceTypes(ctx context.Context) ([]PriceType, error)
	CreatePriceType(ctx context.Context, pt PriceType) (PriceType, error)
	ListProductPrices(ctx context.Context, priceTypeID int64) ([]ProductPrice, error)
	GetActiveProductPrice(ctx context.Context, productID, priceTypeID int64) (ProductPrice, error)
	UpsertProductPrice(ctx context.Context, pp ProductPrice) (ProductPrice, error)
}

// repo implements Repository over PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

// Product operations

func (r *repo) ListProducts(ctx context.Context, onlyActive bool) ([]Product, error) {
	query := `SELECT id, name, base_price, is_active, created_at, updated_at FROM products`
	if onlyActive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.BasePrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	query := `SELECT id, name, base_price, is_active, created_at, updated_at FROM products WHERE id = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.BasePrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, notFoundOr(err)
}

func (r *repo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	query := `INSERT INTO products (name, base_price, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $4) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, p.Name, p.BasePrice, p.IsActive, now).Scan(&p.ID); err != nil {
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *repo) UpdateProduct(ctx context.Context, id int64, p Product) error {
	query := `UPDATE products SET name = $1, base_price = $2, is_active = $3, updated_at = $4 WHERE id = $5`
	tag, err := r.db.Exec(ctx, query, p.Name, p.BasePrice, p.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Warehouse operations

func (r *repo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	query := `SELECT id, name, address, is_central, created_at, updated_at FROM warehouses ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.IsCentral, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	query := `SELECT id, name, address, is_central, created_at, updated_at FROM warehouses WHERE id = $1`
	var w Warehouse
	err := r.db.QueryRow(ctx, query, id).Scan(&w.ID, &w.Name, &w.Address, &w.IsCentral, &w.CreatedAt, &w.UpdatedAt)
	return w, notFoundOr(err)
}

// CentralWarehouse resolves the return destination: the warehouse flagged
// central, falling back to the lowest id when none is flagged.
func (r *repo) CentralWarehouse(ctx context.Context) (Warehouse, error) {
	query := `SELECT id, name, address, is_central, created_at, updated_at
	          FROM warehouses ORDER BY is_central DESC, id ASC LIMIT 1`
	var w Warehouse
	err := r.db.QueryRow(ctx, query).Scan(&w.ID, &w.Name, &w.Address, &w.IsCentral, &w.CreatedAt, &w.UpdatedAt)
	return w, notFoundOr(err)
}

func (r *repo) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	query := `INSERT INTO warehouses (name, address, is_central, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $4) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, w.Name, w.Address, w.IsCentral, now).Scan(&w.ID); err != nil {
		return Warehouse{}, err
	}
	w.CreatedAt = now
	w.UpdatedAt = now
	return w, nil
}

func (r *repo) UpdateWarehouse(ctx context.Context, id int64, w Warehouse) error {
	query := `UPDATE warehouses SET name = $1, address = $2, is_central = $3, updated_at = $4 WHERE id = $5`
	tag, err := r.db.Exec(ctx, query, w.Name, w.Address, w.IsCentral, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Customer operations

func (r *repo) ListCustomers(ctx context.Context, onlyActive bool) ([]Customer, error) {
	query := `SELECT id, name, phone, address, discount_per_unit, is_active, created_at, updated_at FROM customers`
	if onlyActive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.DiscountPerUnit, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *repo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	query := `SELECT id, name, phone, address, discount_per_unit, is_active, created_at, updated_at FROM customers WHERE id = $1`
	var c Customer
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.DiscountPerUnit, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, notFoundOr(err)
}

func (r *repo) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	query := `INSERT INTO customers (name, phone, address, discount_per_unit, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, c.Name, c.Phone, c.Address, c.DiscountPerUnit, c.IsActive, now).Scan(&c.ID); err != nil {
		return Customer{}, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

func (r *repo) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	query := `UPDATE customers SET name = $1, phone = $2, address = $3, discount_per_unit = $4, is_active = $5, updated_at = $6 WHERE id = $7`
	tag, err := r.db.Exec(ctx, query, c.Name, c.Phone, c.Address, c.DiscountPerUnit, c.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Truck operations

func (r *repo) ListTrucks(ctx context.Context) ([]Truck, error) {
	query := `SELECT id, plate, name, is_active, created_at, updated_at FROM trucks ORDER BY plate`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trucks []Truck
	for rows.Next() {
		var t Truck
		if err := rows.Scan(&t.ID, &t.Plate, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		trucks = append(trucks, t)
	}
	return trucks, rows.Err()
}

func (r *repo) GetTruck(ctx context.Context, id int64) (Truck, error) {
	query := `SELECT id, plate, name, is_active, created_at, updated_at FROM trucks WHERE id = $1`
	var t Truck
	err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.Plate, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, notFoundOr(err)
}

func (r *repo) CreateTruck(ctx context.Context, t Truck) (Truck, error) {
	query := `INSERT INTO trucks (plate, name, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $4) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, t.Plate, t.Name, t.IsActive, now).Scan(&t.ID); err != nil {
		return Truck{}, err
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

func (r *repo) UpdateTruck(ctx context.Context, id int64, t Truck) error {
	query := `UPDATE trucks SET plate = $1, name = $2, is_active = $3, updated_at = $4 WHERE id = $5`
	tag, err := r.db.Exec(ctx, query, t.Plate, t.Name, t.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Driver operations

func (r *repo) ListDrivers(ctx context.Context) ([]Driver, error) {
	query := `SELECT id, name, phone, license, is_active, created_at, updated_at FROM drivers ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.License, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

func (r *repo) GetDriver(ctx context.Context, id int64) (Driver, error) {
	query := `SELECT id, name, phone, license, is_active, created_at, updated_at FROM drivers WHERE id = $1`
	var d Driver
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.Name, &d.Phone, &d.License, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return d, notFoundOr(err)
}

func (r *repo) CreateDriver(ctx context.Context, d Driver) (Driver, error) {
	query := `INSERT INTO drivers (name, phone, license, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, d.Name, d.Phone, d.License, d.IsActive, now).Scan(&d.ID); err != nil {
		return Driver{}, err
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	return d, nil
}

func (r *repo) UpdateDriver(ctx context.Context, id int64, d Driver) error {
	query := `UPDATE drivers SET name = $1, phone = $2, license = $3, is_active = $4, updated_at = $5 WHERE id = $6`
	tag, err := r.db.Exec(ctx, query, d.Name, d.Phone, d.License, d.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Price type operations

func (r *repo) ListPriceTypes(ctx context.Context) ([]PriceType, error) {
	query := `SELECT id, name, description, created_at FROM price_types ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []PriceType
	for rows.Next() {
		var pt PriceType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

func (r *repo) CreatePriceType(ctx context.Context, pt PriceType) (PriceType, error) {
	query := `INSERT INTO price_types (name, description, created_at) VALUES ($1, $2, $3) RETURNING id`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, pt.Name, pt.Description, now).Scan(&pt.ID); err != nil {
		return PriceType{}, err
	}
	pt.CreatedAt = now
	return pt, nil
}

func (r *repo) ListProductPrices(ctx context.Context, priceTypeID int64) ([]ProductPrice, error) {
	query := `SELECT id, product_id, price_type_id, price, is_active, created_at, updated_at
	          FROM product_prices WHERE price_type_id = $1 ORDER BY product_id`
	rows, err := r.db.Query(ctx, query, priceTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []ProductPrice
	for rows.Next() {
		var pp ProductPrice
		if err := rows.Scan(&pp.ID, &pp.ProductID, &pp.PriceTypeID, &pp.Price, &pp.IsActive, &pp.CreatedAt, &pp.UpdatedAt); err != nil {
			return nil, err
		}
		prices = append(prices, pp)
	}
	return prices, rows.Err()
}

// GetActiveProductPrice returns the active fixed price for (product, price type).
func (r *repo) GetActiveProductPrice(ctx context.Context, productID, priceTypeID int64) (ProductPrice, error) {
	query := `SELECT id, product_id, price_type_id, price, is_active, created_at, updated_at
	          FROM product_prices WHERE product_id = $1 AND price_type_id = $2 AND is_active`
	var pp ProductPrice
	err := r.db.QueryRow(ctx, query, productID, priceTypeID).Scan(&pp.ID, &pp.ProductID, &pp.PriceTypeID, &pp.Price, &pp.IsActive, &pp.CreatedAt, &pp.UpdatedAt)
	return pp, notFoundOr(err)
}

func (r *repo) UpsertProductPrice(ctx context.Context, pp ProductPrice) (ProductPrice, error) {
	query := `INSERT INTO product_prices (product_id, price_type_id, price, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)
	          ON CONFLICT (product_id, price_type_id)
	          DO UPDATE SET price = EXCLUDED.price, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
	          RETURNING id, created_at`
	now := time.Now()
	if err := r.db.QueryRow(ctx, query, pp.ProductID, pp.PriceTypeID, pp.Price, pp.IsActive, now).Scan(&pp.ID, &pp.CreatedAt); err != nil {
		return ProductPrice{}, err
	}
	pp.UpdatedAt = now
	return pp, nil
}

var _ Repository = (*repo)(nil)
