package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	jobmetrics "github.com/stockbook/stockbook/internal/jobs"
	"github.com/stockbook/stockbook/internal/ledger"
)

type fakeReconciler struct {
	report inventory.ReconcileReport
	err    error
	calls  int
}

func (f *fakeReconciler) Reconcile(context.Context) (inventory.ReconcileReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeLowStock struct {
	lines []ledger.StockLine
	limit int
}

func (f *fakeLowStock) LowStock(_ context.Context, limit int) ([]ledger.StockLine, int, error) {
	f.limit = limit
	return f.lines, len(f.lines), nil
}

type recordedNotify struct{ collection, op string }

type fakeNotifier struct{ calls []recordedNotify }

func (f *fakeNotifier) Notify(_ context.Context, collection, _ string, op string) {
	f.calls = append(f.calls, recordedNotify{collection: collection, op: op})
}

type fakeCleaner struct{ olderThan time.Duration }

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, nil
}

func TestReconcileJobRecordsDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	svc := &fakeReconciler{report: inventory.ReconcileReport{Checked: 4, Repaired: []inventory.ReconcileDrift{
		{Item: ledger.RM("a"), Stored: 5, Computed: 3},
		{Item: ledger.FG("b"), Stored: 0, Computed: 1},
	}}}
	job := NewReconcileJob(svc, nil, metrics)

	task, err := NewReconcileTask(time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, svc.calls)

	families, err := reg.Gather()
	require.NoError(t, err)
	var drift float64
	for _, mf := range families {
		if mf.GetName() == "stockbook_balance_drift_repaired_total" {
			drift = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), drift)
}

func TestReconcileJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewReconcileJob(&fakeReconciler{err: boom}, nil, nil)
	task, err := NewReconcileTask(time.Time{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestJobsSkipRetryOnBadPayload(t *testing.T) {
	bad := asynq.NewTask(TaskLedgerReconcile, []byte("{"))
	require.ErrorIs(t, NewReconcileJob(&fakeReconciler{}, nil, nil).Handle(context.Background(), bad), asynq.SkipRetry)
	require.ErrorIs(t, NewLowStockScanJob(&fakeLowStock{}, nil, nil, nil).Handle(context.Background(), bad), asynq.SkipRetry)
	require.ErrorIs(t, NewCleanupJob(&fakeCleaner{}, nil, nil).Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestUnconfiguredJobFails(t *testing.T) {
	task, err := NewReconcileTask(time.Time{})
	require.NoError(t, err)
	var job *ReconcileJob
	require.Error(t, job.Handle(context.Background(), task))
}

func TestLowStockScanSetsGaugeAndNotifies(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	source := &fakeLowStock{lines: []ledger.StockLine{
		{Item: ledger.Item{ID: "rm-a", Kind: ledger.KindRM, Code: "A", Threshold: 5}, Balance: 3, Level: ledger.LevelLow},
		{Item: ledger.Item{ID: "rm-b", Kind: ledger.KindRM, Code: "B", Threshold: 5}, Balance: 0, Level: ledger.LevelOut},
		{Item: ledger.Item{ID: "fg-a", Kind: ledger.KindFG, Code: "A", Threshold: 2}, Balance: 1, Level: ledger.LevelLow},
	}}
	notifier := &fakeNotifier{}
	job := NewLowStockScanJob(source, notifier, nil, metrics)

	task, err := NewLowStockScanTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Zero(t, source.limit)
	require.Equal(t, []recordedNotify{{collection: "alerts", op: "update"}}, notifier.calls)
	require.Equal(t, map[string]float64{"RM": 2, "FG": 1}, gaugeByKind(t, reg, "stockbook_low_stock_items"))
}

func gaugeByKind(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "kind" {
					out[label.GetValue()] = m.GetGauge().GetValue()
				}
			}
		}
	}
	return out
}

func TestLowStockScanQuietWhenNothingLow(t *testing.T) {
	notifier := &fakeNotifier{}
	job := NewLowStockScanJob(&fakeLowStock{}, notifier, nil, nil)
	task, err := NewLowStockScanTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, notifier.calls)
}

func TestCleanupJobUsesPayloadAge(t *testing.T) {
	cleaner := &fakeCleaner{}
	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, NewCleanupJob(cleaner, nil, nil).Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)

	zero := asynq.NewTask(TaskIdempotencyCleanup, []byte(`{}`))
	require.NoError(t, NewCleanupJob(cleaner, nil, nil).Handle(context.Background(), zero))
	require.Equal(t, 24*time.Hour, cleaner.olderThan)
}

func TestDefaultSchedule(t *testing.T) {
	entries, err := DefaultSchedule()
	require.NoError(t, err)
	specs := map[string]string{}
	for _, e := range entries {
		specs[e.Task.Type()] = e.Spec
	}
	require.Equal(t, map[string]string{
		TaskLowStockScan:       "30 1 * * *",
		TaskLedgerReconcile:    "0 2 * * *",
		TaskIdempotencyCleanup: "5 * * * *",
	}, specs)
}

func TestHandlersSkipsNilJobs(t *testing.T) {
	handlers := Handlers(NewReconcileJob(&fakeReconciler{}, nil, nil), nil, NewCleanupJob(&fakeCleaner{}, nil, nil))
	require.Len(t, handlers, 2)
	require.Equal(t, TaskLedgerReconcile, handlers[0].Type)
	require.Equal(t, TaskIdempotencyCleanup, handlers[1].Type)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}
