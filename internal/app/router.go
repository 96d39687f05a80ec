package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soufra-erp/soufra-erp/internal/bom"
	"github.com/soufra-erp/soufra-erp/internal/importer"
	"github.com/soufra-erp/soufra-erp/internal/ledger"
	"github.com/soufra-erp/soufra-erp/internal/observability"
	"github.com/soufra-erp/soufra-erp/internal/sales"
	"github.com/soufra-erp/soufra-erp/internal/transfer"
	"github.com/soufra-erp/soufra-erp/internal/zoho"
	"github.com/soufra-erp/soufra-erp/jobs"
)

// RouterConfig aggregates the handlers mounted on the HTTP surface.
type RouterConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Metrics  *observability.Metrics
	Ledger   *ledger.Handler
	BOM      *bom.Handler
	Transfer *transfer.Handler
	Sales    *sales.Handler
	Importer *importer.Handler
	Zoho     *zoho.Handler
	Jobs     *jobs.Handler
}

// NewRouter builds the chi router. Health and metrics stay outside the
// authenticated API group.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  cfg.Logger,
		Config:  cfg.Config,
		Metrics: cfg.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APIKeyAuth(cfg.Config, cfg.Logger))

		r.Route("/outlets/{outlet}", func(r chi.Router) {
			cfg.Ledger.MountRoutes(r)
			if cfg.Importer != nil {
				cfg.Importer.MountRoutes(r)
			}
		})
		r.Route("/boms", cfg.BOM.MountRoutes)
		r.Route("/transfers", cfg.Transfer.MountRoutes)
		r.Route("/sales", cfg.Sales.MountRoutes)
		r.Route("/reports", cfg.Ledger.MountReportRoutes)
		if cfg.Zoho != nil {
			r.Route("/zoho", cfg.Zoho.MountRoutes)
		}
		if cfg.Jobs != nil {
			r.Route("/jobs", cfg.Jobs.MountRoutes)
		}
	})

	return r
}
