package core

// Aggregates are the totals derived from a set of transactions.
type Aggregates struct {
	TotalIncome   Money `json:"totalIncome"`
	TotalExpenses Money `json:"totalExpenses"`
	Balance       Money `json:"balance"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"category"`
	Type   TransactionType `json:"type"`
	Amount Money           `json:"amount"`
}

// Summarize sums amounts per type in cents and derives the balance.
func Summarize(txs []Transaction) Aggregates {
	var agg Aggregates
	for _, t := range txs {
		switch t.Type {
		case Income:
			agg.TotalIncome = agg.TotalIncome.Add(t.Amount)
		case Expense:
			agg.TotalExpenses = agg.TotalExpenses.Add(t.Amount)
		}
	}
	agg.Balance = agg.TotalIncome.Sub(agg.TotalExpenses)
	return agg
}

// BreakdownByCategory groups amounts by (type, category), in the order each
// pair first appears in txs.
func BreakdownByCategory(txs []Transaction) []CategoryAmount {
	type key struct {
		typ  TransactionType
		name string
	}
	index := make(map[key]int)
	var out []CategoryAmount
	for _, t := range txs {
		k := key{typ: t.Type, name: t.Category}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, CategoryAmount{Name: t.Category, Type: t.Type})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	return out
}
