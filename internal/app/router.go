package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ionlife/ionlife/internal/auth"
	"github.com/ionlife/ionlife/internal/inventory"
	"github.com/ionlife/ionlife/internal/logistics"
	"github.com/ionlife/ionlife/internal/masterdata"
	"github.com/ionlife/ionlife/internal/observability"
	"github.com/ionlife/ionlife/internal/orders"
	"github.com/ionlife/ionlife/internal/reports"
	"github.com/ionlife/ionlife/jobs"
)

// RouterParams aggregates the handlers mounted on the API router.
type RouterParams struct {
	Config  *Config
	Metrics *observability.Metrics

	Auth       *auth.Handler
	MasterData *masterdata.Handler
	Inventory  *inventory.Handler
	Orders     *orders.Handler
	Logistics  *logistics.Handler
	Reports    *reports.Handler
	Jobs       *jobs.Handler
}

// NewRouter assembles the HTTP surface.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if p.Auth != nil {
			r.Route("/auth", p.Auth.MountRoutes)
			r.Route("/admin", p.Auth.MountAdminRoutes)
		}
		if p.MasterData != nil {
			r.Group(p.MasterData.MountRoutes)
		}
		if p.Inventory != nil {
			r.Route("/inventory", p.Inventory.MountRoutes)
		}
		if p.Orders != nil {
			r.Route("/orders", p.Orders.MountRoutes)
		}
		if p.Logistics != nil {
			r.Route("/logistics", p.Logistics.MountRoutes)
		}
		if p.Reports != nil {
			r.Route("/reports", p.Reports.MountRoutes)
		}
		if p.Jobs != nil {
			r.Route("/jobs", p.Jobs.MountRoutes)
		}
	})

	return r
}
