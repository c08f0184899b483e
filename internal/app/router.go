package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/stockbook/stockbook/internal/audit/http"
	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/dashboard"
	"github.com/stockbook/stockbook/internal/delivery"
	"github.com/stockbook/stockbook/internal/feed"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/masterdata/suppliers"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/procurement"
	"github.com/stockbook/stockbook/internal/production"
	"github.com/stockbook/stockbook/internal/users"
	"github.com/stockbook/stockbook/jobs"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Auth               auth.Middleware
	AuthHandler        *auth.Handler
	Metrics            *observability.Metrics
	Health             map[string]HealthCheck
	EventsHandler      *feed.Handler
	JobHandler         *jobs.Handler
	DashboardHandler   *dashboard.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	DeliveryHandler    *delivery.Handler
	ProductionHandler  *production.Handler
	SuppliersHandler   *suppliers.Handler
	UsersHandler       *users.Handler
	AuditHandler       *audithttp.Handler
}

// NewRouter constructs the chi.Router with stockbook defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(logger, params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)

		if params.EventsHandler != nil {
			r.Route("/events", params.EventsHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(RequestTimeout(params.Config))
			r.Use(chimw.Compress(5))

			if params.AuthHandler != nil {
				r.Route("/auth", params.AuthHandler.MountRoutes)
			}
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				r.Route("/inventory", params.InventoryHandler.MountRoutes)
			}
			if params.ProcurementHandler != nil {
				r.Route("/procurement", params.ProcurementHandler.MountRoutes)
			}
			if params.DeliveryHandler != nil {
				r.Route("/delivery", params.DeliveryHandler.MountRoutes)
			}
			if params.ProductionHandler != nil {
				r.Route("/production", params.ProductionHandler.MountRoutes)
			}
			if params.SuppliersHandler != nil {
				r.Route("/masterdata/suppliers", params.SuppliersHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), r.Method+" not allowed on "+r.URL.Path)
	})

	return r
}

func healthz(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				out[name] = "down"
				out["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		w.Header().Set("Cache-Control", "no-store")
		httpx.JSON(w, status, out)
	}
}
