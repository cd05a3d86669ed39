package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      auth.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers master data routes. Reads require authentication,
// writes require the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/warehouses", h.listWarehouses)
	r.Get("/customers", h.listCustomers)
	r.Get("/customers/{id}", h.getCustomer)
	r.Get("/trucks", h.listTrucks)
	r.Get("/drivers", h.listDrivers)
	r.Get("/price-types", h.listPriceTypes)
	r.Get("/price-types/{id}/prices", h.listProductPrices)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin))
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Post("/warehouses", h.createWarehouse)
		r.Put("/warehouses/{id}", h.updateWarehouse)
		r.Post("/customers", h.createCustomer)
		r.Put("/customers/{id}", h.updateCustomer)
		r.Post("/trucks", h.createTruck)
		r.Put("/trucks/{id}", h.updateTruck)
		r.Post("/drivers", h.createDriver)
		r.Put("/drivers/{id}", h.updateDriver)
		r.Post("/price-types", h.createPriceType)
		r.Put("/price-types/{id}/prices", h.upsertProductPrice)
	})
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive number")
	}
	return id, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	if !errors.Is(err, shared.ErrNotFound) {
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error(action, slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err)
}

// Products

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	products, err := h.service.ListProducts(r.Context(), onlyActive)
	if err != nil {
		h.respondErr(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type productRequest struct {
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	IsActive  *bool           `json:"is_active"`
}

func (pr productRequest) toProduct() Product {
	active := true
	if pr.IsActive != nil {
		active = *pr.IsActive
	}
	return Product{Name: pr.Name, BasePrice: pr.BasePrice, IsActive: active}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, err := h.service.CreateProduct(r.Context(), actor.ID, req.toProduct())
	if err != nil {
		h.respondErr(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateProduct(r.Context(), actor.ID, id, req.toProduct()); err != nil {
		h.respondErr(w, "update product", err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

// Warehouses

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.respondErr(w, "list warehouses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses})
}

type warehouseRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	IsCentral bool   `json:"is_central"`
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	warehouse, err := h.service.CreateWarehouse(r.Context(), actor.ID, Warehouse{Name: req.Name, Address: req.Address, IsCentral: req.IsCentral})
	if err != nil {
		h.respondErr(w, "create warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) updateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateWarehouse(r.Context(), actor.ID, id, Warehouse{Name: req.Name, Address: req.Address, IsCentral: req.IsCentral}); err != nil {
		h.respondErr(w, "update warehouse", err)
		return
	}
	warehouse, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

// Customers

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	customers, err := h.service.ListCustomers(r.Context(), onlyActive)
	if err != nil {
		h.respondErr(w, "list customers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

type customerRequest struct {
	Name            string          `json:"name"`
	Phone           string          `json:"phone"`
	Address         string          `json:"address"`
	DiscountPerUnit decimal.Decimal `json:"discount_per_unit"`
	IsActive        *bool           `json:"is_active"`
}

func (cr customerRequest) toCustomer() Customer {
	active := true
	if cr.IsActive != nil {
		active = *cr.IsActive
	}
	return Customer{Name: cr.Name, Phone: cr.Phone, Address: cr.Address, DiscountPerUnit: cr.DiscountPerUnit, IsActive: active}
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	customer, err := h.service.CreateCustomer(r.Context(), actor.ID, req.toCustomer())
	if err != nil {
		h.respondErr(w, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateCustomer(r.Context(), actor.ID, id, req.toCustomer()); err != nil {
		h.respondErr(w, "update customer", err)
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

// Trucks

func (h *Handler) listTrucks(w http.ResponseWriter, r *http.Request) {
	trucks, err := h.service.ListTrucks(r.Context())
	if err != nil {
		h.respondErr(w, "list trucks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trucks": trucks})
}

type truckRequest struct {
	Plate    string `json:"plate"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

func (tr truckRequest) toTruck() Truck {
	active := true
	if tr.IsActive != nil {
		active = *tr.IsActive
	}
	return Truck{Plate: tr.Plate, Name: tr.Name, IsActive: active}
}

func (h *Handler) createTruck(w http.ResponseWriter, r *http.Request) {
	var req truckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	truck, err := h.service.CreateTruck(r.Context(), actor.ID, req.toTruck())
	if err != nil {
		h.respondErr(w, "create truck", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, truck)
}

func (h *Handler) updateTruck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req truckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateTruck(r.Context(), actor.ID, id, req.toTruck()); err != nil {
		h.respondErr(w, "update truck", err)
		return
	}
	truck, err := h.service.GetTruck(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get truck", err)
		return
	}
	httpx.JSON(w, http.StatusOK, truck)
}

// Drivers

func (h *Handler) listDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.service.ListDrivers(r.Context())
	if err != nil {
		h.respondErr(w, "list drivers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

type driverRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	License  string `json:"license"`
	IsActive *bool  `json:"is_active"`
}

func (dr driverRequest) toDriver() Driver {
	active := true
	if dr.IsActive != nil {
		active = *dr.IsActive
	}
	return Driver{Name: dr.Name, Phone: dr.Phone, License: dr.License, IsActive: active}
}

func (h *Handler) createDriver(w http.ResponseWriter, r *http.Request) {
	var req driverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	driver, err := h.service.CreateDriver(r.Context(), actor.ID, req.toDriver())
	if err != nil {
		h.respondErr(w, "create driver", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, driver)
}

func (h *Handler) updateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req driverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateDriver(r.Context(), actor.ID, id, req.toDriver()); err != nil {
		h.respondErr(w, "update driver", err)
		return
	}
	driver, err := h.service.GetDriver(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get driver", err)
		return
	}
	httpx.JSON(w, http.StatusOK, driver)
}

// Price types

func (h *Handler) listPriceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListPriceTypes(r.Context())
	if err != nil {
		h.respondErr(w, "list price types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"price_types": types})
}

type priceTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createPriceType(w http.ResponseWriter, r *http.Request) {
	var req priceTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	priceType, err := h.service.CreatePriceType(r.Context(), actor.ID, PriceType{Name: req.Name, Description: req.Description})
	if err != nil {
		h.respondErr(w, "create price type", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, priceType)
}

func (h *Handler) listProductPrices(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	prices, err := h.service.ListProductPrices(r.Context(), id)
	if err != nil {
		h.respondErr(w, "list product prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"prices": prices})
}

type productPriceRequest struct {
	ProductID int64           `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	IsActive  *bool           `json:"is_active"`
}

func (h *Handler) upsertProductPrice(w http.ResponseWriter, r *http.Request) {
	priceTypeID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	actor := shared.ActorFromContext(r.Context())
	price, err := h.service.UpsertProductPrice(r.Context(), actor.ID, ProductPrice{
		ProductID:   req.ProductID,
		PriceTypeID: priceTypeID,
		Price:       req.Price,
		IsActive:    active,
	})
	if err != nil {
		h.respondErr(w, "upsert product price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, price)
}
