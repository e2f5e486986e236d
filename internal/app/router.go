package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/finpilot/finpilot/internal/audit"
	"github.com/finpilot/finpilot/internal/auth"
	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/invoices"
	"github.com/finpilot/finpilot/internal/observability"
	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/plstatements"
	"github.com/finpilot/finpilot/jobs"
	"github.com/finpilot/finpilot/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Issuer  *auth.Issuer
	Metrics *observability.Metrics

	InvoiceHandler     *invoices.Handler
	GSTHandler         *gst.Handler
	PLStatementHandler *plstatements.Handler
	AuditHandler       *audit.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(params.Issuer, params.Logger))
		if params.InvoiceHandler != nil {
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.GSTHandler != nil {
			r.Route("/gst", params.GSTHandler.MountRoutes)
		}
		if params.PLStatementHandler != nil {
			r.Route("/pl-statements", params.PLStatementHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "route not found")
	})

	return r
}
