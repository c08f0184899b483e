package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/internal/audit"
	audithttp "github.com/stockbook/stockbook/internal/audit/http"
	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/dashboard"
	"github.com/stockbook/stockbook/internal/delivery"
	"github.com/stockbook/stockbook/internal/feed"
	"github.com/stockbook/stockbook/internal/inventory"
	mdshared "github.com/stockbook/stockbook/internal/masterdata/shared"
	"github.com/stockbook/stockbook/internal/masterdata/suppliers"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/procurement"
	"github.com/stockbook/stockbook/internal/production"
	"github.com/stockbook/stockbook/internal/users"
	"github.com/stockbook/stockbook/jobs"
)

// snapshotLimit caps document and movement lists pushed over the event stream.
const snapshotLimit = 50

// ServerDeps carries the connections owned by the caller.
type ServerDeps struct {
	Config    *Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Inspector jobs.QueueInspector
	Metrics   *observability.Metrics
}

// Server is the assembled HTTP application.
type Server struct {
	Core      *Core
	Users     *users.Service
	Suppliers *suppliers.Service
	Handler   http.Handler
}

// NewServer wires every service and handler onto one router.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	core := NewCore(cfg, logger, deps.Pool, deps.Redis, deps.Metrics)
	clock := core.Clock

	authService := auth.NewService(auth.NewRepository(deps.Pool), authCacheTTL(cfg))
	authMW := auth.Middleware{Service: authService, Logger: logger}

	procurementService := procurement.NewService(procurement.NewRepository(deps.Pool), core.Inventory, core.Audit, core.Idempotency, clock, logger)
	procurementService.SetNotifier(core.Publisher)
	deliveryService := delivery.NewService(delivery.NewRepository(deps.Pool), core.Inventory, core.Audit, core.Idempotency, clock, logger)
	deliveryService.SetNotifier(core.Publisher)
	productionService := production.NewService(production.NewRepository(deps.Pool), core.Inventory, core.Audit, core.Idempotency, clock, logger)
	productionService.SetNotifier(core.Publisher)

	supplierService := suppliers.NewService(suppliers.NewRepository(deps.Pool), core.Audit, clock)
	supplierService.SetNotifier(core.Publisher)
	userService := users.NewService(users.NewRepository(deps.Pool), core.Audit, authService, clock, logger)

	auditService := audit.NewService(audit.NewRepository(deps.Pool))
	lowLimit := 0
	if cfg != nil {
		lowLimit = cfg.DashboardLowStockLimit
	}
	dashboardService := dashboard.NewService(core.Ledger, dashboard.NewRepository(deps.Pool), clock, lowLimit)

	events := feed.NewHandler(logger, feed.NewHub(deps.Redis, logger), authMW)
	events.Register("items", func(ctx context.Context) (any, error) {
		return core.Inventory.ListItems(ctx, inventory.ItemFilter{})
	})
	events.Register("balances", func(ctx context.Context) (any, error) {
		return core.Inventory.Balances(ctx, inventory.ItemFilter{})
	}, "balances", "items")
	events.Register("movements", func(ctx context.Context) (any, error) {
		return core.Inventory.ListMovements(ctx, inventory.MovementFilter{Limit: snapshotLimit})
	})
	events.Register("alerts", func(ctx context.Context) (any, error) {
		lines, total, err := core.Inventory.LowStock(ctx, 0)
		return map[string]any{"items": lines, "total": total}, err
	}, "alerts", "balances", "items")
	events.Register("dashboard", func(ctx context.Context) (any, error) {
		return dashboardService.Build(ctx)
	}, "balances", "items", "bills", "delivery_notes", "productions")
	events.Register("bills", func(ctx context.Context) (any, error) {
		return procurementService.ListGRNs(ctx, procurement.BillFilter{DocFilter: inventory.DocFilter{Limit: snapshotLimit}})
	})
	events.Register("delivery_notes", func(ctx context.Context) (any, error) {
		return deliveryService.List(ctx, delivery.NoteFilter{DocFilter: inventory.DocFilter{Limit: snapshotLimit}})
	})
	events.Register("productions", func(ctx context.Context) (any, error) {
		return productionService.List(ctx, inventory.DocFilter{Limit: snapshotLimit})
	})
	events.Register("suppliers", func(ctx context.Context) (any, error) {
		list, _, err := supplierService.List(ctx, mdshared.ListFilters{Limit: mdshared.MaxLimit}.Normalize())
		return list, err
	})

	health := map[string]HealthCheck{}
	if deps.Pool != nil {
		health["postgres"] = deps.Pool.Ping
	}
	if deps.Redis != nil {
		health["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		Auth:               authMW,
		AuthHandler:        auth.NewHandler(),
		Metrics:            deps.Metrics,
		Health:             health,
		EventsHandler:      events,
		JobHandler:         jobs.NewHandler(deps.Inspector, logger),
		DashboardHandler:   dashboard.NewHandler(logger, dashboardService, authMW),
		InventoryHandler:   inventory.NewHandler(logger, core.Inventory, authMW),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, authMW),
		DeliveryHandler:    delivery.NewHandler(logger, deliveryService, authMW),
		ProductionHandler:  production.NewHandler(logger, productionService, authMW),
		SuppliersHandler:   suppliers.NewHandler(logger, supplierService, authMW),
		UsersHandler:       users.NewHandler(logger, userService, authMW),
		AuditHandler:       audithttp.NewHandler(logger, auditService, authMW),
	})

	return &Server{Core: core, Users: userService, Suppliers: supplierService, Handler: handler}
}

// Bootstrap creates the configured admin account when no user exists yet.
func (s *Server) Bootstrap(ctx context.Context, cfg *Config) error {
	if cfg == nil || cfg.BootstrapAdminUser == "" {
		return nil
	}
	created, err := s.Users.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminUser, cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	if created {
		s.Core.Logger.Info("bootstrap admin created", slog.String("username", cfg.BootstrapAdminUser))
	}
	return nil
}

func authCacheTTL(cfg *Config) time.Duration {
	if cfg == nil {
		return time.Minute
	}
	return cfg.AuthCacheTTL
}
