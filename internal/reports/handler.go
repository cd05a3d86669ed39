package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Handler wires HTTP endpoints for the reports module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      auth.Middleware
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers report routes. Reads only; drivers are excluded.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)
	r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleOperator))

	r.Get("/sales-by-day", h.report(func(ctx reportCtx) (any, error) {
		return h.service.SalesByDay(ctx.r.Context(), ctx.rng)
	}))
	r.Get("/orders-by-status", h.report(func(ctx reportCtx) (any, error) {
		return h.service.OrdersByStatus(ctx.r.Context(), ctx.rng)
	}))
	r.Get("/deliveries-per-truck", h.report(func(ctx reportCtx) (any, error) {
		return h.service.DeliveriesPerTruck(ctx.r.Context(), ctx.rng)
	}))
	r.Get("/driver-performance", h.report(func(ctx reportCtx) (any, error) {
		return h.service.DriverPerformance(ctx.r.Context(), ctx.rng)
	}))
	r.Get("/summary", h.report(func(ctx reportCtx) (any, error) {
		return h.service.OrdersSummary(ctx.r.Context(), ctx.rng)
	}))
	r.Get("/dashboard", h.report(func(ctx reportCtx) (any, error) {
		return h.service.Dashboard(ctx.r.Context(), ctx.rng)
	}))
}

type reportCtx struct {
	r   *http.Request
	rng DateRange
}

func (h *Handler) report(load func(reportCtx) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := parseRange(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		result, err := load(reportCtx{r: r, rng: rng})
		if err != nil {
			h.logger.Error("report query failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func parseRange(r *http.Request) (DateRange, error) {
	var rng DateRange
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return rng, shared.NewValidationError("from", "must be YYYY-MM-DD")
		}
		rng.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return rng, shared.NewValidationError("to", "must be YYYY-MM-DD")
		}
		rng.To = to
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return rng, shared.NewValidationError("to", "must not precede from")
	}
	return rng, nil
}
