package ledger

// ComputeBalance sums the signed quantities of every movement that targets ref.
// The result is not clamped and may be negative. It is recomputed from the
// full history on every call.
func ComputeBalance(ref ItemRef, movements []Movement) int64 {
	var total int64
	for _, m := range movements {
		if m.Item != ref {
			continue
		}
		total += m.Signed()
	}
	return total
}

// ComputeBalances reduces the whole history into one balance per item.
func ComputeBalances(movements []Movement) map[ItemRef]int64 {
	balances := make(map[ItemRef]int64)
	for _, m := range movements {
		balances[m.Item] += m.Signed()
	}
	return balances
}
