package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/otrixindiacloud/tradeflow/internal/ar"
	"github.com/otrixindiacloud/tradeflow/internal/audit"
	"github.com/otrixindiacloud/tradeflow/internal/observability"
	"github.com/otrixindiacloud/tradeflow/internal/procurement"
	"github.com/otrixindiacloud/tradeflow/internal/sales/orders"
	"github.com/otrixindiacloud/tradeflow/internal/sales/quotations"
	"github.com/otrixindiacloud/tradeflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	QuotationHandler   *quotations.Handler
	OrderHandler       *orders.Handler
	ProcurementHandler *procurement.Handler
	ARHandler          *ar.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.QuotationHandler != nil {
		r.Route("/sales/quotations", params.QuotationHandler.MountRoutes)
	}
	if params.OrderHandler != nil {
		r.Route("/sales/orders", params.OrderHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/procurement/lpos", params.ProcurementHandler.MountRoutes)
	}
	if params.ARHandler != nil {
		r.Route("/finance/invoices", params.ARHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
