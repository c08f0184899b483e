package ledger

// Level classifies a balance against its threshold.
type Level string

const (
	// LevelOut is at or below zero.
	LevelOut Level = "out"
	// LevelLow is positive but at or below the threshold.
	LevelLow Level = "low"
	// LevelOK is above the threshold.
	LevelOK Level = "ok"
)

// IsLowStock reports whether balance is at or below the item threshold.
// Equality counts as low.
func IsLowStock(item Item, balance int64) bool {
	return balance <= item.Threshold
}

// LevelOf returns the display level for the balance of item.
func LevelOf(item Item, balance int64) Level {
	switch {
	case balance <= 0:
		return LevelOut
	case IsLowStock(item, balance):
		return LevelLow
	default:
		return LevelOK
	}
}

// StockLine pairs an item with its current balance.
type StockLine struct {
	Item    Item  `json:"item"`
	Balance int64 `json:"balance"`
	Level   Level `json:"level"`
}

// LowStock returns the low items in input order, at most limit of them
// (limit <= 0 means no cap), together with the uncapped count.
func LowStock(items []Item, balances map[ItemRef]int64, limit int) ([]StockLine, int) {
	lines := make([]StockLine, 0)
	total := 0
	for _, item := range items {
		bal := balances[item.Ref()]
		if !IsLowStock(item, bal) {
			continue
		}
		total++
		if limit > 0 && len(lines) >= limit {
			continue
		}
		lines = append(lines, StockLine{Item: item, Balance: bal, Level: LevelOf(item, bal)})
	}
	return lines, total
}
