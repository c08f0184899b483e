package procurement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/inventory/inventorytest"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

type memoryProcRepo struct {
	store     *inventorytest.Store
	bills     map[string]Bill
	order     []string
	suppliers map[string]bool
	failLines error
}

type memoryProcTx struct {
	inventory.TxRepository
	repo    *memoryProcRepo
	pending []Bill
}

func newMemoryProcRepo(store *inventorytest.Store) *memoryProcRepo {
	return &memoryProcRepo{store: store, bills: map[string]Bill{}, suppliers: map[string]bool{"sup-1": true}}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var tx *memoryProcTx
	err := r.store.WithTx(ctx, func(ctx context.Context, inner inventory.TxRepository) error {
		tx = &memoryProcTx{TxRepository: inner, repo: r}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	for _, bill := range tx.pending {
		r.bills[bill.ID] = bill
		r.order = append(r.order, bill.ID)
	}
	return nil
}

func (r *memoryProcRepo) GetBill(ctx context.Context, id string) (Bill, error) {
	bill, ok := r.bills[id]
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return bill, nil
}

func (r *memoryProcRepo) ListBills(ctx context.Context, filter BillFilter) ([]Bill, error) {
	out := []Bill{}
	for i := len(r.order) - 1; i >= 0; i-- {
		bill := r.bills[r.order[i]]
		if filter.SupplierID != "" && bill.SupplierID != filter.SupplierID {
			continue
		}
		out = append(out, bill)
	}
	return out, nil
}

func (tx *memoryProcTx) SupplierExists(ctx context.Context, id string) (bool, error) {
	return tx.repo.suppliers[id], nil
}

func (tx *memoryProcTx) InsertBill(ctx context.Context, bill Bill) error {
	for _, existing := range tx.repo.bills {
		if existing.Number == bill.Number {
			return shared.ErrConflict
		}
	}
	tx.pending = append(tx.pending, bill)
	return nil
}

func (tx *memoryProcTx) InsertBillLines(ctx context.Context, billID string, lines []inventory.DocLine) error {
	return tx.repo.failLines
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryProcRepo, *inventorytest.Store, *memoryAudit) {
	t.Helper()
	store := inventorytest.NewStore()
	repo := newMemoryProcRepo(store)
	audit := &memoryAudit{}
	clock := shared.FixedClock(testNow)
	inv := inventory.NewService(store, nil, nil, inventory.ServiceConfig{Clock: clock})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, inv, audit, nil, clock, logger), repo, store, audit
}

func TestCreateGRNPostsOneInPerLine(t *testing.T) {
	svc, repo, store, audit := newTestService(t)
	rmA := store.AddItem(ledger.KindRM, "RM-A", 5)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		SupplierID: "sup-1",
		Lines: []inventory.LineInput{
			{ItemID: rmA.ID, Qty: 4},
			{ItemID: rmA.ID, Qty: 6},
		},
	}, "")
	require.NoError(t, err)
	require.Len(t, grn.Movements, 2)
	for _, m := range grn.Movements {
		require.Equal(t, ledger.In, m.Direction)
		require.Equal(t, rmA.Ref(), m.Item)
		require.Equal(t, &ledger.DocRef{Kind: ledger.DocBill, ID: grn.Bill.ID}, m.Ref)
		require.Equal(t, "2026-10-19", m.Date)
	}
	require.Equal(t, int64(4), grn.Movements[0].Qty)
	require.Equal(t, int64(6), grn.Movements[1].Qty)
	require.Len(t, store.Movements(), 2)
	require.Equal(t, int64(10), store.StoredBalance(rmA.Ref()))
	require.Contains(t, repo.bills, grn.Bill.ID)
	require.Regexp(t, `^GRN-20261019-[0-9A-F]{6}$`, grn.Bill.Number)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "grn.create", audit.logs[0].Action)
	require.Equal(t, grn.Bill.ID, audit.logs[0].EntityID)
}

func TestCreateGRNRejectsFinishedGoods(t *testing.T) {
	svc, repo, store, audit := newTestService(t)
	rm := store.AddItem(ledger.KindRM, "RM-A", 5)
	fg := store.AddItem(ledger.KindFG, "FG-A", 5)

	_, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		SupplierID: "sup-1",
		Lines:      []inventory.LineInput{{ItemID: rm.ID, Qty: 1}, {ItemID: fg.ID, Qty: 1}},
	}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.Movements())
	require.Empty(t, repo.bills)
	require.Empty(t, audit.logs)
}

func TestCreateGRNValidation(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	rm := store.AddItem(ledger.KindRM, "RM-A", 5)

	_, err := svc.CreateGRN(context.Background(), CreateGRNInput{SupplierID: "sup-1"}, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{SupplierID: "sup-1", Lines: []inventory.LineInput{{ItemID: rm.ID, Qty: 0}}}, "")
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "lines[0].qty")

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{SupplierID: "nobody", Lines: []inventory.LineInput{{ItemID: rm.ID, Qty: 1}}}, "")
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "supplier_id")
	require.Empty(t, store.Movements())
}

func TestCreateGRNWriteFailureRollsBack(t *testing.T) {
	svc, repo, store, _ := newTestService(t)
	rm := store.AddItem(ledger.KindRM, "RM-A", 5)
	store.FailInsertAt = 2
	store.FailErr = errors.New("connection reset")

	_, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		SupplierID: "sup-1",
		Lines:      []inventory.LineInput{{ItemID: rm.ID, Qty: 1}, {ItemID: rm.ID, Qty: 2}},
	}, "")
	require.Error(t, err)
	require.Empty(t, store.Movements())
	require.Zero(t, store.StoredBalance(rm.Ref()))
	require.Empty(t, repo.bills)
}

func TestGetAndListGRN(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	rm := store.AddItem(ledger.KindRM, "RM-A", 5)
	created, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		Number:     "grn-001",
		SupplierID: "sup-1",
		Date:       "2026-10-18",
		Lines:      []inventory.LineInput{{ItemID: rm.ID, Qty: 3}},
	}, "")
	require.NoError(t, err)
	require.Equal(t, "GRN-001", created.Bill.Number)

	got, err := svc.GetGRN(context.Background(), created.Bill.ID)
	require.NoError(t, err)
	require.Len(t, got.Movements, 1)
	require.Equal(t, "2026-10-18", got.Movements[0].Date)

	_, err = svc.GetGRN(context.Background(), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.ListGRNs(context.Background(), BillFilter{SupplierID: "sup-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.ListGRNs(context.Background(), BillFilter{DocFilter: inventory.DocFilter{From: "18/10/2026"}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{Number: "GRN-001", SupplierID: "sup-1", Lines: []inventory.LineInput{{ItemID: rm.ID, Qty: 1}}}, "")
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, store.Movements(), 1)
}
