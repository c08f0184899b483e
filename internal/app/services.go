package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/internal/feed"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/shared"
)

// Core holds the services shared by the HTTP server and the worker.
type Core struct {
	Logger      *slog.Logger
	Clock       shared.Clock
	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore
	Publisher   *feed.Publisher
	Ledger      *inventory.Repository
	Inventory   *inventory.Service
}

// NewCore wires the ledger service with its audit, idempotency, metrics and
// change feed collaborators.
func NewCore(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	clock := shared.SystemClock{}
	maxBytes := 0
	allowNegative := false
	if cfg != nil {
		maxBytes = cfg.AuditMaxDetailBytes
		allowNegative = cfg.AllowNegativeStock
	}

	auditLogger := shared.NewAuditLogger(pool, logger, maxBytes)
	idempotency := shared.NewIdempotencyStore(pool)
	publisher := feed.NewPublisher(redisClient, clock, logger)

	repo := inventory.NewRepository(pool)
	svc := inventory.NewService(repo, auditLogger, idempotency, inventory.ServiceConfig{
		AllowNegativeStock: allowNegative,
		Clock:              clock,
		Logger:             logger,
	})
	svc.SetNotifier(publisher)
	if metrics != nil {
		svc.Observe(metrics)
	}
	if allowNegative {
		logger.Warn("negative stock allowed; stock-out will not be rejected")
	}

	return &Core{
		Logger:      logger,
		Clock:       clock,
		Audit:       auditLogger,
		Idempotency: idempotency,
		Publisher:   publisher,
		Ledger:      repo,
		Inventory:   svc,
	}
}
