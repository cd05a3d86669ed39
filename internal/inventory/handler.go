package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	mw          auth.Middleware
	idempotency *shared.IdempotencyStore
}

// NewHandler constructs the inventory handler. The idempotency store may be
// nil, disabling Idempotency-Key handling on movement writes.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, idempotency: idempotency}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)

	r.Get("/stock", h.handleListStock)
	r.Get("/movements", h.handleListMovements)
	r.Get("/low-stock", h.handleLowStock)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleOperator))
		r.Post("/move", h.handleMove)
		r.Put("/min-qty", h.handleSetMinQty)
	})
}

type moveRequest struct {
	WarehouseID int64  `json:"warehouse_id"`
	ProductID   int64  `json:"product_id"`
	Qty         int64  `json:"qty"`
	Kind        string `json:"kind"`
	Note        string `json:"note"`
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	// Manual movements are the classic double-submit target; an optional
	// Idempotency-Key makes retries safe.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.Reserve(r.Context(), "inventory", idemKey); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "movement with this idempotency key was already recorded")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	actor := shared.ActorFromContext(r.Context())
	result, err := h.service.RecordMovement(r.Context(), MovementInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		Kind:        MovementKind(req.Kind),
		Note:        req.Note,
		ActorID:     actor.ID,
	})
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			if delErr := h.idempotency.Release(r.Context(), "inventory", idemKey); delErr != nil {
				h.logger.Warn("idempotency rollback", slog.Any("error", delErr))
			}
		}
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			h.logger.Error("record movement", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement recorded",
		slog.Int64("movement_id", result.Movement.ID),
		slog.Int64("warehouse_id", result.Movement.WarehouseID),
		slog.Int64("product_id", result.Movement.ProductID),
		slog.Int64("resulting_qty", result.ResultingQty))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	var filter StockFilter
	q := r.URL.Query()
	if v := q.Get("warehouse_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("warehouse_id", "must be a number"))
			return
		}
		filter.WarehouseID = &id
	}
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("product_id", "must be a number"))
			return
		}
		filter.ProductID = &id
	}
	levels, err := h.service.ListStockLevels(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": levels})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"low_stock": levels})
}

type minQtyRequest struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	MinQty      int64 `json:"min_qty"`
}

func (h *Handler) handleSetMinQty(w http.ResponseWriter, r *http.Request) {
	var req minQtyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.SetMinQty(r.Context(), actor.ID, req.WarehouseID, req.ProductID, req.MinQty); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("set min qty", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	var filter MovementFilter
	q := r.URL.Query()
	parseID := func(name string) (*int64, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, shared.NewValidationError(name, "must be a number")
		}
		return &id, nil
	}
	var err error
	if filter.WarehouseID, err = parseID("warehouse_id"); err != nil {
		return filter, err
	}
	if filter.ProductID, err = parseID("product_id"); err != nil {
		return filter, err
	}
	if filter.OrderID, err = parseID("order_id"); err != nil {
		return filter, err
	}
	if v := q.Get("kind"); v != "" {
		kind := MovementKind(v)
		if !kind.Valid() {
			return filter, shared.NewValidationError("kind", "must be one of IN, OUT, RETURN, ADJUSTMENT")
		}
		filter.Kind = &kind
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
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, shared.NewValidationError("limit", "must be a number")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, shared.NewValidationError("offset", "must be a number")
		}
		filter.Offset = offset
	}
	return filter, nil
}
