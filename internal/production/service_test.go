package production

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/inventory/inventorytest"
	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

type memoryRepo struct {
	store *inventorytest.Store
	runs  map[string]Run
}

type memoryTx struct {
	inventory.TxRepository
	pending []Run
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{}
	if err := r.store.WithTx(ctx, func(ctx context.Context, inner inventory.TxRepository) error {
		tx.TxRepository = inner
		return fn(ctx, tx)
	}); err != nil {
		return err
	}
	for _, run := range tx.pending {
		r.runs[run.ID] = run
	}
	return nil
}

func (r *memoryRepo) GetRun(ctx context.Context, id string) (Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (r *memoryRepo) ListRuns(ctx context.Context, filter inventory.DocFilter) ([]Run, error) {
	out := []Run{}
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out, nil
}

func (tx *memoryTx) InsertRun(ctx context.Context, run Run) error {
	tx.pending = append(tx.pending, run)
	return nil
}

func (tx *memoryTx) InsertRunLines(ctx context.Context, runID string, lines []inventory.DocLine) error {
	return nil
}

type recordingObserver struct {
	batches [][]ledger.Movement
}

func (o *recordingObserver) MovementsPosted(ctx context.Context, movements []ledger.Movement) {
	o.batches = append(o.batches, movements)
}

func newTestService() (*Service, *memoryRepo, *inventorytest.Store, *recordingObserver) {
	store := inventorytest.NewStore()
	repo := &memoryRepo{store: store, runs: map[string]Run{}}
	clock := shared.FixedClock(time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC))
	inv := inventory.NewService(store, nil, nil, inventory.ServiceConfig{Clock: clock})
	obs := &recordingObserver{}
	inv.Observe(obs)
	return NewService(repo, inv, nil, nil, clock, nil), repo, store, obs
}

func TestRecordCreditsFinishedGoodsOnly(t *testing.T) {
	svc, repo, store, obs := newTestService()
	flour := store.AddItem(ledger.KindRM, "FLOUR", 5)
	cake := store.AddItem(ledger.KindFG, "CAKE", 2)
	store.Seed(flour.Ref(), ledger.In, 100, "2026-10-18")

	rec, err := svc.Record(context.Background(), CreateRunInput{Lines: []inventory.LineInput{{ItemID: cake.ID, Qty: 40}}}, "")
	require.NoError(t, err)
	require.Len(t, rec.Movements, 1)
	require.Equal(t, ledger.In, rec.Movements[0].Direction)
	require.Equal(t, &ledger.DocRef{Kind: ledger.DocProduction, ID: rec.Run.ID}, rec.Movements[0].Ref)
	require.Equal(t, int64(40), store.StoredBalance(cake.Ref()))
	require.Equal(t, int64(100), store.StoredBalance(flour.Ref()))
	require.Contains(t, repo.runs, rec.Run.ID)
	require.Regexp(t, `^PRD-20261019-`, rec.Run.Number)
	require.Len(t, obs.batches, 1)
}

func TestRecordRejectsRawMaterialLines(t *testing.T) {
	svc, repo, store, obs := newTestService()
	flour := store.AddItem(ledger.KindRM, "FLOUR", 5)

	_, err := svc.Record(context.Background(), CreateRunInput{Lines: []inventory.LineInput{{ItemID: flour.ID, Qty: 1}}}, "")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.runs)
	require.Empty(t, store.Movements())
	require.Empty(t, obs.batches)
}

func TestGetRun(t *testing.T) {
	svc, _, store, _ := newTestService()
	cake := store.AddItem(ledger.KindFG, "CAKE", 2)
	rec, err := svc.Record(context.Background(), CreateRunInput{Date: "2026-10-17", Lines: []inventory.LineInput{{ItemID: cake.ID, Qty: 3}}}, "")
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), rec.Run.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-10-17", got.Movements[0].Date)

	_, err = svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.List(context.Background(), inventory.DocFilter{From: "2026-10-19", To: "2026-10-01"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
