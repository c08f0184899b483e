package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbook/stockbook/internal/inventory"
	jobmetrics "github.com/stockbook/stockbook/internal/jobs"
	"github.com/stockbook/stockbook/internal/ledger"
)

// Reconciler is implemented by inventory.Service.
type Reconciler interface {
	Reconcile(ctx context.Context) (inventory.ReconcileReport, error)
}

// ReconcileJob repairs maintained balances that drifted from the ledger.
type ReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle runs one reconcile pass.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() { resultErr = tracker.End(resultErr) }()

	start := time.Now()
	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLedgerReconcile))
	logger.Info("starting ledger reconcile")
	report, err := j.Service.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.Int("checked", report.Checked), slog.Any("error", err))
		return err
	}
	j.Metrics.AddDrift(len(report.Repaired))
	logger.Info("completed ledger reconcile",
		slog.Int("checked", report.Checked),
		slog.Int("repaired", len(report.Repaired)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// LowStockSource is implemented by inventory.Service.
type LowStockSource interface {
	LowStock(ctx context.Context, limit int) ([]ledger.StockLine, int, error)
}

// Notifier publishes a change notification.
type Notifier interface {
	Notify(ctx context.Context, collection, id, op string)
}

// LowStockScanJob logs every low item and publishes an alerts change.
type LowStockScanJob struct {
	Source   LowStockSource
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(source LowStockSource, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle runs one scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLowStockScan))
	lines, total, err := j.Source.LowStock(ctx, 0)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	counts := map[ledger.ItemKind]int{ledger.KindRM: 0, ledger.KindFG: 0}
	for _, line := range lines {
		counts[line.Item.Kind]++
		logger.Warn("low stock",
			slog.String("kind", string(line.Item.Kind)),
			slog.String("code", line.Item.Code),
			slog.Int64("balance", line.Balance),
			slog.Int64("threshold", line.Item.Threshold),
			slog.String("level", string(line.Level)),
		)
	}
	for kind, n := range counts {
		j.Metrics.SetLowStock(string(kind), n)
	}
	if total > 0 && j.Notifier != nil {
		j.Notifier.Notify(ctx, "alerts", "", "update")
	}
	logger.Info("completed low stock scan", slog.Int("low", total))
	return nil
}

// KeyCleaner is implemented by shared.IdempotencyStore.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob deletes expired idempotency keys.
type CleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCleanupJob initialises the cleanup handler.
func NewCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle runs one cleanup.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 24
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { resultErr = tracker.End(resultErr) }()

	deleted, err := j.Store.Cleanup(ctx, time.Duration(payload.OlderThanHours)*time.Hour)
	if err != nil {
		return err
	}
	loggerOrDefault(j.Logger).Info("idempotency keys purged",
		slog.String("job", TaskIdempotencyCleanup),
		slog.Int64("deleted", deleted))
	return nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Handlers maps the periodic task types onto their handlers. Nil jobs are skipped.
func Handlers(reconcile *ReconcileJob, scan *LowStockScanJob, cleanup *CleanupJob) []TaskHandler {
	var out []TaskHandler
	if reconcile != nil {
		out = append(out, TaskHandler{Type: TaskLedgerReconcile, Handler: reconcile.Handle})
	}
	if scan != nil {
		out = append(out, TaskHandler{Type: TaskLowStockScan, Handler: scan.Handle})
	}
	if cleanup != nil {
		out = append(out, TaskHandler{Type: TaskIdempotencyCleanup, Handler: cleanup.Handle})
	}
	return out
}
