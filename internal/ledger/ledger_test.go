package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mv(ref ItemRef, dir Direction, qty int64) Movement {
	return Movement{Item: ref, Direction: dir, Qty: qty, Date: "2026-10-19"}
}

func TestComputeBalanceEmpty(t *testing.T) {
	require.Equal(t, int64(0), ComputeBalance(RM("a"), nil))
	require.Equal(t, int64(0), ComputeBalance(FG("a"), []Movement{}))
}

func TestComputeBalanceIgnoresOtherItemsAndKinds(t *testing.T) {
	movements := []Movement{
		mv(RM("a"), In, 10),
		mv(FG("a"), In, 100),
		mv(RM("b"), In, 7),
		mv(RM("a"), Out, 4),
	}
	require.Equal(t, int64(6), ComputeBalance(RM("a"), movements))
	require.Equal(t, int64(100), ComputeBalance(FG("a"), movements))
	require.Equal(t, int64(7), ComputeBalance(RM("b"), movements))
}

func TestComputeBalanceMayGoNegative(t *testing.T) {
	movements := []Movement{mv(FG("x"), In, 5), mv(FG("x"), Out, 3), mv(FG("x"), Out, 3)}
	require.Equal(t, int64(-1), ComputeBalance(FG("x"), movements))
}

func TestComputeBalanceOrderIndependent(t *testing.T) {
	movements := []Movement{
		mv(RM("a"), In, 10), mv(RM("a"), Out, 3), mv(RM("a"), In, 8),
		mv(RM("a"), Out, 1), mv(FG("a"), In, 2), mv(RM("a"), Out, 9),
	}
	want := ComputeBalance(RM("a"), movements)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Movement(nil), movements...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		require.Equal(t, want, ComputeBalance(RM("a"), shuffled))
	}
	// recomputing over an unchanged set is stable
	require.Equal(t, want, ComputeBalance(RM("a"), movements))
}

func TestComputeBalancesMatchesPerItem(t *testing.T) {
	movements := []Movement{mv(RM("a"), In, 10), mv(FG("b"), In, 4), mv(RM("a"), Out, 2), mv(FG("b"), Out, 5)}
	all := ComputeBalances(movements)
	require.Equal(t, ComputeBalance(RM("a"), movements), all[RM("a")])
	require.Equal(t, ComputeBalance(FG("b"), movements), all[FG("b")])
	require.Len(t, all, 2)
}

func TestScenarioA(t *testing.T) {
	item := Item{ID: "a", Kind: KindRM, Threshold: 5}
	bal := ComputeBalance(item.Ref(), []Movement{mv(item.Ref(), In, 10), mv(item.Ref(), Out, 3)})
	require.Equal(t, int64(7), bal)
	require.False(t, IsLowStock(item, bal))
	require.Equal(t, LevelOK, LevelOf(item, bal))
}

func TestScenarioB(t *testing.T) {
	item := Item{ID: "a", Kind: KindRM, Threshold: 5}
	bal := ComputeBalance(item.Ref(), []Movement{mv(item.Ref(), In, 10), mv(item.Ref(), Out, 7)})
	require.Equal(t, int64(3), bal)
	require.True(t, IsLowStock(item, bal))
	require.Equal(t, LevelLow, LevelOf(item, bal))
}

func TestLowStockThresholdInclusive(t *testing.T) {
	item := Item{ID: "a", Kind: KindFG, Threshold: 5}
	require.True(t, IsLowStock(item, 5))
	require.False(t, IsLowStock(item, 6))
	require.Equal(t, LevelOut, LevelOf(item, 0))
	require.Equal(t, LevelOut, LevelOf(item, -2))
}

func TestLowStockKeepsOrderAndCaps(t *testing.T) {
	var items []Item
	balances := map[ItemRef]int64{}
	for _, id := range []string{"h", "g", "f", "e", "d", "c", "b", "a"} {
		item := Item{ID: id, Kind: KindRM, Threshold: 10}
		items = append(items, item)
		balances[item.Ref()] = 1
	}
	ok := Item{ID: "ok", Kind: KindRM, Threshold: 1}
	items = append([]Item{ok}, items...)
	balances[ok.Ref()] = 50

	lines, total := LowStock(items, balances, 6)
	require.Equal(t, 8, total)
	require.Len(t, lines, 6)
	require.Equal(t, "h", lines[0].Item.ID)
	require.Equal(t, "c", lines[5].Item.ID)
}

func TestMovementValidate(t *testing.T) {
	require.NoError(t, mv(RM("a"), In, 1).Validate())
	require.ErrorIs(t, mv(RM("a"), In, 0).Validate(), ErrInvalidQuantity)
	require.ErrorIs(t, mv(RM(""), In, 1).Validate(), ErrInvalidItem)
	require.ErrorIs(t, mv(ItemRef{Kind: "XX", ItemID: "a"}, In, 1).Validate(), ErrInvalidItem)
	require.ErrorIs(t, mv(RM("a"), "SIDEWAYS", 1).Validate(), ErrInvalidDirection)
	bad := mv(RM("a"), Out, 1)
	bad.Date = "19/10/2026"
	require.ErrorIs(t, bad.Validate(), ErrInvalidDate)
}

func TestDailySeriesFillsEmptyDays(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
	movements := []Movement{
		{Item: RM("a"), Direction: In, Qty: 10, Date: "2026-10-19"},
		{Item: FG("b"), Direction: Out, Qty: 4, Date: "2026-10-19"},
		{Item: FG("b"), Direction: In, Qty: 6, Date: "2026-10-06"},
		{Item: RM("a"), Direction: In, Qty: 99, Date: "2026-10-05"},
	}
	series := DailySeries(movements, now, SeriesDays)
	require.Len(t, series, SeriesDays)
	require.Equal(t, "2026-10-06", series[0].Date)
	require.Equal(t, DailyFlow{Date: "2026-10-06", In: 6}, series[0])
	require.Equal(t, DailyFlow{Date: "2026-10-19", In: 10, Out: 4}, series[13])
	require.Equal(t, DailyFlow{Date: "2026-10-12", In: 0, Out: 0}, series[6])
}

func TestDailySeriesRollsForward(t *testing.T) {
	movements := []Movement{{Item: RM("a"), Direction: In, Qty: 3, Date: "2026-10-06"}}
	day1 := DailySeries(movements, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), SeriesDays)
	day2 := DailySeries(movements, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), SeriesDays)
	require.Equal(t, int64(3), day1[0].In)
	require.Equal(t, "2026-10-07", day2[0].Date)
	for _, d := range day2 {
		require.Zero(t, d.In)
	}
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rmA := Item{ID: "rm-a", Kind: KindRM, Threshold: 5}
	rmB := Item{ID: "rm-b", Kind: KindRM, Threshold: 5}
	fgA := Item{ID: "fg-a", Kind: KindFG, Threshold: 2}
	in := DashboardInput{
		Items: []Item{rmA, rmB, fgA},
		Movements: []Movement{
			{Item: rmA.Ref(), Direction: In, Qty: 10, Date: "2026-10-19"},
			{Item: rmB.Ref(), Direction: In, Qty: 3, Date: "2026-10-18"},
			{Item: fgA.Ref(), Direction: In, Qty: 9, Date: "2026-10-18"},
			{Item: fgA.Ref(), Direction: Out, Qty: 8, Date: "2026-10-19"},
		},
		Documents: []DocDate{
			{Kind: DocBill, Date: "2026-10-19"},
			{Kind: DocBill, Date: "2026-10-18"},
			{Kind: DocDelivery, Date: "2026-10-19"},
			{Kind: DocProduction, Date: "2026-10-19T00:00:00Z"},
		},
	}
	dash := BuildDashboard(in, now, 0)
	require.Equal(t, KindCounts{RM: 2, FG: 1}, dash.Items)
	require.Equal(t, KindCounts{RM: 1, FG: 1}, dash.LowCounts)
	require.Len(t, dash.LowStock, 2)
	require.Equal(t, "rm-b", dash.LowStock[0].Item.ID)
	require.Equal(t, IssuedCounts{Bills: 1, Deliveries: 1}, dash.IssuedToday)
	require.Equal(t, 2, dash.IssuedToday.Total())
	require.Len(t, dash.Series, SeriesDays)
	require.Equal(t, DailyFlow{Date: "2026-10-19", In: 10, Out: 8}, dash.Series[13])
	require.Equal(t, DailyFlow{Date: "2026-10-18", In: 12}, dash.Series[12])
}
