package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Balance reduces a set of transactions to a signed total:
// income amounts added, expense amounts subtracted. The empty set is zero
// and the result does not depend on ordering.
func Balance(txs []Transaction) Money {
	var cents int64
	for _, t := range txs {
		switch t.Kind {
		case Income:
			cents += t.Amount.Cents
		case Expense:
			cents -= t.Amount.Cents
		}
	}
	return Money{Cents: cents}
}

// SummarizeExpenses aggregates expense amounts by category, in first-seen
// category order so repeated summaries of the same ledger render identically.
func SummarizeExpenses(txs []Transaction) []CategoryAmount {
	totals := map[string]int64{}
	var order []string
	for _, t := range txs {
		if t.Kind != Expense {
			continue
		}
		if _, ok := totals[t.Category]; !ok {
			order = append(order, t.Category)
		}
		totals[t.Category] += t.Amount.Cents
	}
	out := make([]CategoryAmount, 0, len(order))
	for _, name := range order {
		out = append(out, CategoryAmount{Name: name, Amount: Money{Cents: totals[name]}})
	}
	return out
}
