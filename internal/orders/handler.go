package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Handler wires HTTP endpoints for the orders module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      auth.Middleware
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)

	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleOperator))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Post("/{id}/cancel", h.handleCancel)
	})
}

type lineRequest struct {
	ProductID   int64           `json:"product_id"`
	Qty         int64           `json:"qty"`
	PriceTypeID *int64          `json:"price_type_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type orderRequest struct {
	CustomerID    int64         `json:"customer_id"`
	Address       string        `json:"address"`
	PaymentMethod string        `json:"payment_method"`
	Priority      string        `json:"priority"`
	Notes         string        `json:"notes"`
	ScheduledDate string        `json:"scheduled_date"`
	Lines         []lineRequest `json:"lines"`
}

func (req orderRequest) lines() []LineInput {
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{ProductID: l.ProductID, Qty: l.Qty, PriceTypeID: l.PriceTypeID, UnitPrice: l.UnitPrice})
	}
	return lines
}

func parseScheduledDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, shared.NewValidationError("scheduled_date", "must be YYYY-MM-DD")
	}
	return date, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	var verr *shared.ValidationError
	var cerr *shared.ConflictError
	var serr *shared.StateError
	if !errors.Is(err, shared.ErrNotFound) && !errors.As(err, &verr) && !errors.As(err, &cerr) && !errors.As(err, &serr) {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	scheduled, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.CreateOrder(r.Context(), actor.ID, CreateOrderInput{
		CustomerID:    req.CustomerID,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Priority:      req.Priority,
		Notes:         req.Notes,
		ScheduledDate: scheduled,
		Lines:         req.lines(),
	})
	if err != nil {
		h.respondErr(w, "create order", err)
		return
	}
	h.logger.Info("order created", slog.Int64("order_id", order.ID), slog.Int64("customer_id", order.CustomerID))
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be a number"))
		return
	}
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	scheduled, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.UpdateOrder(r.Context(), actor.ID, id, UpdateOrderInput{
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Priority:      req.Priority,
		Notes:         req.Notes,
		ScheduledDate: scheduled,
		Lines:         req.lines(),
	})
	if err != nil {
		h.respondErr(w, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be a number"))
		return
	}
	order, history, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "history": history})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, pagination, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondErr(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"pagination": map[string]any{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

type cancelRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be a number"))
		return
	}
	// Body is optional; a missing or malformed note is not worth a 400.
	var req cancelRequest
	_ = httpx.DecodeJSON(r, &req)
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Cancel(r.Context(), actor.ID, id, req.Note)
	if err != nil {
		h.respondErr(w, "cancel order", err)
		return
	}
	h.logger.Info("order cancelled", slog.Int64("order_id", order.ID))
	httpx.JSON(w, http.StatusOK, order)
}

func parseOrderFilter(r *http.Request) (OrderFilter, error) {
	var filter OrderFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			return filter, shared.NewValidationError("status", "unknown status")
		}
		filter.Status = &status
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, shared.NewValidationError("customer_id", "must be a number")
		}
		filter.CustomerID = &id
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, shared.NewValidationError("from", "must be YYYY-MM-DD")
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, shared.NewValidationError("to", "must be YYYY-MM-DD")
		}
		filter.To = to
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return filter, shared.NewValidationError("page", "must be a number")
		}
		filter.Page = page
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil {
			return filter, shared.NewValidationError("per_page", "must be a number")
		}
		filter.PerPage = perPage
	}
	return filter, nil
}
