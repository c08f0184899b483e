package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/inventory/inventorytest"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+key)
	return nil
}

type countingObserver struct {
	posted []ledger.Movement
}

func (o *countingObserver) MovementsPosted(ctx context.Context, movements []ledger.Movement) {
	o.posted = append(o.posted, movements...)
}

var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func newService(store *inventorytest.Store, audit inventory.AuditPort) *inventory.Service {
	return inventory.NewService(store, audit, nil, inventory.ServiceConfig{Clock: shared.FixedClock(testNow)})
}

func TestCreateItemNormalisesCode(t *testing.T) {
	store := inventorytest.NewStore()
	audit := &memoryAudit{}
	svc := newService(store, audit)

	item, err := svc.CreateItem(context.Background(), inventory.ItemInput{Kind: ledger.KindRM, Code: "  flour-01 ", Name: "Flour", Threshold: 5, QtyPerFG: 0.5})
	require.NoError(t, err)
	require.Equal(t, "FLOUR-01", item.Code)
	require.Equal(t, testNow, item.CreatedAt)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "item.create", audit.logs[0].Action)

	_, err = svc.CreateItem(context.Background(), inventory.ItemInput{Kind: ledger.KindRM, Code: "FLOUR-01", Name: "Again"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateItemValidation(t *testing.T) {
	svc := newService(inventorytest.NewStore(), nil)
	_, err := svc.CreateItem(context.Background(), inventory.ItemInput{Kind: "XX", Name: "x", Threshold: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "kind")
	require.Contains(t, verr.Fields, "code")
	require.Contains(t, verr.Fields, "threshold")
}

func TestUpdateItemKeepsKind(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	item := store.AddItem(ledger.KindFG, "CAKE", 2)

	_, err := svc.UpdateItem(context.Background(), item.ID, inventory.ItemInput{Kind: ledger.KindRM, Code: "CAKE", Name: "Cake"})
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, err := svc.UpdateItem(context.Background(), item.ID, inventory.ItemInput{Kind: ledger.KindFG, Code: "cake", Name: "Cake", Threshold: 9})
	require.NoError(t, err)
	require.Equal(t, int64(9), updated.Threshold)
}

func TestStockInThenOut(t *testing.T) {
	store := inventorytest.NewStore()
	audit := &memoryAudit{}
	svc := newService(store, audit)
	obs := &countingObserver{}
	svc.Observe(obs)
	item := store.AddItem(ledger.KindRM, "SUGAR", 5)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{Username: "ana"})

	res, err := svc.StockIn(ctx, inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 10}, "")
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Balance)
	require.Equal(t, "2026-10-19", res.Movement.Date)
	require.Equal(t, "ana", res.Movement.CreatedBy)

	res, err = svc.StockOut(ctx, inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 3, Date: "2026-10-18"}, "")
	require.NoError(t, err)
	require.Equal(t, int64(7), res.Balance)
	require.Equal(t, ledger.Out, res.Movement.Direction)
	require.Equal(t, int64(3), res.Movement.Qty)

	line, err := svc.Balance(ctx, item.Ref())
	require.NoError(t, err)
	require.Equal(t, int64(7), line.Balance)
	require.Equal(t, ledger.LevelOK, line.Level)
	require.Len(t, obs.posted, 2)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "stock.out", audit.logs[1].Action)
}

func TestStockOutInsufficientWritesNothing(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	item := store.AddItem(ledger.KindFG, "BREAD", 0)
	store.Seed(item.Ref(), ledger.In, 15, "2026-10-18")

	_, err := svc.StockOut(context.Background(), inventory.StockRequest{Kind: ledger.KindFG, ItemID: item.ID, Qty: 20}, "")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, store.Movements(), 1)
	require.Equal(t, int64(15), store.StoredBalance(item.Ref()))
}

func TestStockOutAllowNegative(t *testing.T) {
	store := inventorytest.NewStore()
	svc := inventory.NewService(store, nil, nil, inventory.ServiceConfig{AllowNegativeStock: true, Clock: shared.FixedClock(testNow)})
	item := store.AddItem(ledger.KindFG, "BREAD", 0)

	res, err := svc.StockOut(context.Background(), inventory.StockRequest{Kind: ledger.KindFG, ItemID: item.ID, Qty: 2}, "")
	require.NoError(t, err)
	require.Equal(t, int64(-2), res.Balance)
}

func TestStockRejectsWrongKind(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	item := store.AddItem(ledger.KindRM, "SALT", 0)

	_, err := svc.StockIn(context.Background(), inventory.StockRequest{Kind: ledger.KindFG, ItemID: item.ID, Qty: 1}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.StockIn(context.Background(), inventory.StockRequest{Kind: ledger.KindRM, ItemID: "missing", Qty: 1}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.StockIn(context.Background(), inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 0}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.Movements())
}

func TestConcurrentStockOutCannotOverdraw(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	item := store.AddItem(ledger.KindFG, "JAM", 0)
	store.Seed(item.Ref(), ledger.In, 10, "2026-10-18")

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StockOut(context.Background(), inventory.StockRequest{Kind: ledger.KindFG, ItemID: item.ID, Qty: 3}, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	require.Equal(t, 3, ok)
	require.Equal(t, int64(1), store.StoredBalance(item.Ref()))
	require.Equal(t, int64(1), ledger.ComputeBalance(item.Ref(), store.Movements()))
}

func TestIdempotencyKeyReplayConflicts(t *testing.T) {
	store := inventorytest.NewStore()
	idem := &memoryIdem{keys: map[string]bool{}}
	svc := inventory.NewService(store, nil, idem, inventory.ServiceConfig{Clock: shared.FixedClock(testNow)})
	item := store.AddItem(ledger.KindRM, "OIL", 0)
	req := inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 4}

	_, err := svc.StockIn(context.Background(), req, "k-1")
	require.NoError(t, err)
	_, err = svc.StockIn(context.Background(), req, "k-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, store.Movements(), 1)

	// a failed request releases its key
	_, err = svc.StockOut(context.Background(), inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 50}, "k-2")
	require.Error(t, err)
	require.False(t, idem.keys["inventory.stock.outk-2"])
}

func TestAuditFailureDoesNotFailIssuance(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, &memoryAudit{err: errors.New("audit down")})
	item := store.AddItem(ledger.KindRM, "MILK", 0)

	_, err := svc.StockIn(context.Background(), inventory.StockRequest{Kind: ledger.KindRM, ItemID: item.ID, Qty: 1}, "")
	require.NoError(t, err)
}

func TestBalancesAndLowStock(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	a := store.AddItem(ledger.KindRM, "A", 5)
	b := store.AddItem(ledger.KindRM, "B", 5)
	c := store.AddItem(ledger.KindFG, "C", 1)
	store.Seed(a.Ref(), ledger.In, 10, "2026-10-18")
	store.Seed(a.Ref(), ledger.Out, 3, "2026-10-18")
	store.Seed(b.Ref(), ledger.In, 10, "2026-10-18")
	store.Seed(b.Ref(), ledger.Out, 7, "2026-10-18")

	lines, err := svc.Balances(context.Background(), inventory.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, "A", lines[0].Item.Code)
	require.Equal(t, ledger.LevelOK, lines[0].Level)
	require.Equal(t, ledger.LevelLow, lines[1].Level)
	require.Equal(t, ledger.LevelOut, lines[2].Level)

	low, total, err := svc.LowStock(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, low, 1)
	require.Equal(t, b.ID, low[0].Item.ID)
	_ = c
}

func TestBalanceRecomputesFromHistory(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	a := store.AddItem(ledger.KindRM, "A", 5)
	store.Seed(a.Ref(), ledger.In, 10, "2026-10-18")
	store.SetBalance(a.Ref(), 99)

	line, err := svc.Balance(context.Background(), a.Ref())
	require.NoError(t, err)
	require.Equal(t, int64(10), line.Balance)

	_, err = svc.Balance(context.Background(), ledger.FG(a.ID))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcileRepairsDrift(t *testing.T) {
	store := inventorytest.NewStore()
	audit := &memoryAudit{}
	svc := newService(store, audit)
	a := store.AddItem(ledger.KindRM, "A", 5)
	b := store.AddItem(ledger.KindFG, "B", 5)
	store.Seed(a.Ref(), ledger.In, 10, "2026-10-18")
	store.Seed(b.Ref(), ledger.In, 4, "2026-10-18")
	store.SetBalance(a.Ref(), 12)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, []inventory.ReconcileDrift{{Item: a.Ref(), Stored: 12, Computed: 10}}, report.Repaired)
	require.Equal(t, int64(10), store.StoredBalance(a.Ref()))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger.reconcile", audit.logs[0].Action)

	report, err = svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Repaired)
}

func TestReconcileRestartedTransactionReportsDriftOnce(t *testing.T) {
	store := inventorytest.NewStore()
	store.Aborts = 2
	audit := &memoryAudit{}
	svc := newService(store, audit)
	a := store.AddItem(ledger.KindRM, "A", 5)
	store.Seed(a.Ref(), ledger.In, 10, "2026-10-18")
	store.SetBalance(a.Ref(), 7)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, []inventory.ReconcileDrift{{Item: a.Ref(), Stored: 7, Computed: 10}}, report.Repaired)
	require.Len(t, audit.logs, 1)
	require.Equal(t, int64(10), store.StoredBalance(a.Ref()))
}

func TestStockOutRestartedTransactionPostsOnce(t *testing.T) {
	store := inventorytest.NewStore()
	store.Aborts = 2
	svc := newService(store, nil)
	a := store.AddItem(ledger.KindFG, "A", 5)
	store.Seed(a.Ref(), ledger.In, 10, "2026-10-18")

	result, err := svc.StockOut(context.Background(), inventory.StockRequest{Kind: ledger.KindFG, ItemID: a.ID, Qty: 3}, "")
	require.NoError(t, err)
	require.Equal(t, int64(7), result.Balance)
	require.Len(t, store.Movements(), 2)
	require.Equal(t, int64(7), store.StoredBalance(a.Ref()))
}

func TestValidateDateRange(t *testing.T) {
	cases := []struct {
		name     string
		from, to string
		field    string
	}{
		{name: "open", from: "", to: ""},
		{name: "bounded", from: "2026-10-01", to: "2026-10-19"},
		{name: "same day", from: "2026-10-19", to: "2026-10-19"},
		{name: "malformed from", from: "garbage", field: "from"},
		{name: "impossible to", to: "2026-02-30", field: "to"},
		{name: "reversed", from: "2026-10-19", to: "2026-10-01", field: "from"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := inventory.ValidateDateRange(tc.from, tc.to)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestListMovementsFilters(t *testing.T) {
	store := inventorytest.NewStore()
	svc := newService(store, nil)
	a := store.AddItem(ledger.KindRM, "A", 5)
	store.Seed(a.Ref(), ledger.In, 1, "2026-10-10")
	store.Seed(a.Ref(), ledger.In, 2, "2026-10-15")
	store.Seed(ledger.FG("x"), ledger.In, 3, "2026-10-15")

	ref := a.Ref()
	got, err := svc.ListMovements(context.Background(), inventory.MovementFilter{Item: &ref, From: "2026-10-12"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].Qty)
}
