package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile recomputes balances from the movement ledger.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskLowStockScan evaluates every item against its threshold.
	TaskLowStockScan = "stock:low_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ScheduledPayload carries scheduling metadata shared by the periodic tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// CleanupPayload configures idempotency cleanup.
type CleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewReconcileTask constructs a ledger reconcile task.
func NewReconcileTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLedgerReconcile, ScheduledPayload{ScheduledFor: at})
}

// NewLowStockScanTask constructs a low stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, ScheduledPayload{ScheduledFor: at})
}

// NewIdempotencyCleanupTask constructs a cleanup task for keys older than the given age.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{OlderThanHours: int(olderThan / time.Hour)})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

// DefaultSchedule returns the cron registrations run by the worker (UTC).
func DefaultSchedule() ([]CronRegistration, error) {
	reconcile, err := NewReconcileTask(time.Time{})
	if err != nil {
		return nil, err
	}
	scan, err := NewLowStockScanTask(time.Time{})
	if err != nil {
		return nil, err
	}
	cleanup, err := NewIdempotencyCleanupTask(24 * time.Hour)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "30 1 * * *", Task: scan, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: "0 2 * * *", Task: reconcile, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: "5 * * * *", Task: cleanup, Options: []asynq.Option{asynq.MaxRetry(1)}},
	}, nil
}
