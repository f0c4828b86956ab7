package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/milltrack-erp/milltrack/internal/auth"
	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/importer"
	"github.com/milltrack-erp/milltrack/internal/observability"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	"github.com/milltrack-erp/milltrack/internal/workflow"
	"github.com/milltrack-erp/milltrack/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	Identity        func(http.Handler) http.Handler
	AuthHandler     *auth.Handler
	CatalogHandler  *catalog.Handler
	WorkflowHandler *workflow.Handler
	ReceiptsHandler *receipts.Handler
	ImporterHandler *importer.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Identity:       params.Identity,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.CatalogHandler != nil {
		r.Route("/masterdata", params.CatalogHandler.MountRoutes)
	}
	if params.WorkflowHandler != nil {
		r.Route("/change-requests", params.WorkflowHandler.MountRoutes)
	}
	if params.ReceiptsHandler != nil {
		r.Route("/receipts", params.ReceiptsHandler.MountRoutes)
	}
	if params.ImporterHandler != nil {
		r.Route("/imports", params.ImporterHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
