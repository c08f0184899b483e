package ledger

import "time"

// SeriesDays is the length of the trailing in/out series.
const SeriesDays = 14

// DefaultLowStockLimit caps the dashboard alert list.
const DefaultLowStockLimit = 6

// DailyFlow is the summed IN and OUT quantity of one day.
type DailyFlow struct {
	Date string `json:"date"`
	In   int64  `json:"in"`
	Out  int64  `json:"out"`
}

// KindCounts holds per-class counters.
type KindCounts struct {
	RM int `json:"rm"`
	FG int `json:"fg"`
}

// IssuedCounts holds documents issued on one day.
type IssuedCounts struct {
	Bills       int `json:"bills"`
	Deliveries  int `json:"deliveries"`
	Productions int `json:"productions"`
}

// Total returns the sum over all document kinds.
func (c IssuedCounts) Total() int {
	return c.Bills + c.Deliveries + c.Productions
}

// DashboardInput is everything the dashboard is derived from.
type DashboardInput struct {
	Items     []Item
	Movements []Movement
	Documents []DocDate
}

// Dashboard is the read-only summary view.
type Dashboard struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Items       KindCounts   `json:"items"`
	LowCounts   KindCounts   `json:"low_counts"`
	LowStock    []StockLine  `json:"low_stock"`
	IssuedToday IssuedCounts `json:"issued_today"`
	Series      []DailyFlow  `json:"series"`
}

// BuildDashboard derives the dashboard anchored to now. lowLimit <= 0 uses
// DefaultLowStockLimit.
func BuildDashboard(in DashboardInput, now time.Time, lowLimit int) Dashboard {
	if lowLimit <= 0 {
		lowLimit = DefaultLowStockLimit
	}
	balances := ComputeBalances(in.Movements)
	dash := Dashboard{GeneratedAt: now}

	for _, item := range in.Items {
		low := IsLowStock(item, balances[item.Ref()])
		switch item.Kind {
		case KindRM:
			dash.Items.RM++
			if low {
				dash.LowCounts.RM++
			}
		case KindFG:
			dash.Items.FG++
			if low {
				dash.LowCounts.FG++
			}
		}
	}
	dash.LowStock, _ = LowStock(in.Items, balances, lowLimit)

	today := now.Format(DateLayout)
	for _, doc := range in.Documents {
		if doc.Date != today {
			continue
		}
		switch doc.Kind {
		case DocBill:
			dash.IssuedToday.Bills++
		case DocDelivery:
			dash.IssuedToday.Deliveries++
		case DocProduction:
			dash.IssuedToday.Productions++
		}
	}

	dash.Series = DailySeries(in.Movements, now, SeriesDays)
	return dash
}

// DailySeries returns one entry per day for the days ending at now, oldest
// first. Days without movements are present with zero totals.
func DailySeries(movements []Movement, now time.Time, days int) []DailyFlow {
	if days <= 0 {
		return []DailyFlow{}
	}
	series := make([]DailyFlow, days)
	index := make(map[string]int, days)
	anchor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i < days; i++ {
		date := anchor.AddDate(0, 0, i-(days-1)).Format(DateLayout)
		series[i] = DailyFlow{Date: date}
		index[date] = i
	}
	for _, m := range movements {
		i, ok := index[m.Date]
		if !ok {
			continue
		}
		switch m.Direction {
		case In:
			series[i].In += m.Qty
		case Out:
			series[i].Out += m.Qty
		}
	}
	return series
}
