package logistics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Handler wires HTTP endpoints for the logistics module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      auth.Middleware
}

// NewHandler constructs the logistics handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers logistics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)

	r.Get("/deliveries", h.handleListDeliveries)
	r.Get("/deliveries/{id}", h.handleGetDelivery)
	r.Get("/trucks/{id}/orders", h.handleTruckOrders)
	r.Get("/trucks/{id}/summary", h.handleTruckSummary)
	r.Get("/trucks/{id}/settlements", h.handleTruckSettlements)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleOperator))
		r.Post("/deliveries", h.handleAssign)
		r.Post("/deliveries/bulk", h.handleAssignBulk)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleOperator, auth.RoleDriver))
		r.Post("/orders/{id}/confirm", h.handleConfirm)
		r.Post("/returns", h.handleReturn)
		r.Post("/deliveries/{id}/incidents", h.handleIncident)
	})
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

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.NewValidationError("id", "must be a number")
	}
	return id, nil
}

func dateQuery(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Now(), nil
	}
	day, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, shared.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return day, nil
}

type assignRequest struct {
	OrderID     int64  `json:"order_id"`
	TruckID     int64  `json:"truck_id"`
	DriverID    int64  `json:"driver_id"`
	ScheduledAt string `json:"scheduled_at"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("scheduled_at", "must be RFC 3339"))
			return
		}
		scheduledAt = t
	}
	actor := shared.ActorFromContext(r.Context())
	delivery, err := h.service.AssignSingle(r.Context(), actor.ID, AssignInput{
		OrderID: req.OrderID, TruckID: req.TruckID, DriverID: req.DriverID, ScheduledAt: scheduledAt,
	})
	if err != nil {
		h.respondErr(w, "assign delivery", err)
		return
	}
	h.logger.Info("delivery assigned",
		slog.Int64("delivery_id", delivery.ID), slog.Int64("order_id", delivery.OrderID))
	httpx.JSON(w, http.StatusCreated, delivery)
}

func (h *Handler) handleAssignBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkAssignInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	result, err := h.service.AssignBulk(r.Context(), actor.ID, req)
	if err != nil {
		h.respondErr(w, "bulk assign", err)
		return
	}
	h.logger.Info("bulk assignment finished",
		slog.Int("assigned", result.Assigned), slog.Int("skipped", result.Skipped))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	delivery, err := h.service.ConfirmDelivery(r.Context(), actor.ID, orderID)
	if err != nil {
		h.respondErr(w, "confirm delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	settlement, err := h.service.RecordReturn(r.Context(), actor.ID, req)
	if err != nil {
		h.respondErr(w, "record return", err)
		return
	}
	h.logger.Info("return settled",
		slog.Int64("order_id", settlement.OrderID), slog.String("reference", settlement.Reference))
	httpx.JSON(w, http.StatusCreated, settlement)
}

func (h *Handler) handleIncident(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req IncidentInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	req.DeliveryID = deliveryID
	actor := shared.ActorFromContext(r.Context())
	inc, err := h.service.RecordIncident(r.Context(), actor.ID, req)
	if err != nil {
		h.respondErr(w, "record incident", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inc)
}

func (h *Handler) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	delivery, incidents, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"delivery": delivery, "incidents": incidents})
}

func (h *Handler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	var filter DeliveryFilter
	q := r.URL.Query()
	if v := q.Get("truck_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("truck_id", "must be a number"))
			return
		}
		filter.TruckID = &id
	}
	if v := q.Get("driver_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("driver_id", "must be a number"))
			return
		}
		filter.DriverID = &id
	}
	if v := q.Get("status"); v != "" {
		status := orders.Status(v)
		if !status.Valid() {
			httpx.RespondError(w, shared.NewValidationError("status", "unknown status"))
			return
		}
		filter.Status = &status
	}
	if v := q.Get("date"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("date", "must be YYYY-MM-DD"))
			return
		}
		filter.Date = day
	}
	deliveries, err := h.service.ListDeliveries(r.Context(), filter)
	if err != nil {
		h.respondErr(w, "list deliveries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func (h *Handler) handleTruckOrders(w http.ResponseWriter, r *http.Request) {
	truckID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := dateQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stops, err := h.service.TruckOrders(r.Context(), truckID, day)
	if err != nil {
		h.respondErr(w, "truck orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stops": stops})
}

func (h *Handler) handleTruckSummary(w http.ResponseWriter, r *http.Request) {
	truckID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := dateQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.TruckSummary(r.Context(), truckID, day)
	if err != nil {
		h.respondErr(w, "truck summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleTruckSettlements(w http.ResponseWriter, r *http.Request) {
	truckID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	day, err := dateQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	settlements, err := h.service.ListSettlements(r.Context(), truckID, day)
	if err != nil {
		h.respondErr(w, "truck settlements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settlements": settlements})
}
