package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

var errInvalidID = errors.New("transaction id must be an integer")

// parseID parses a path id. Any integer is accepted; ids that were never
// issued simply are not found.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errInvalidID
	}
	return id, nil
}

// formatMoney renders an amount as "$1234.50", with the sign before the symbol.
func formatMoney(m core.Money) string {
	if m.Cents < 0 {
		return "-$" + core.Money{Cents: -m.Cents}.String()
	}
	return "$" + m.String()
}

// percentOf returns part as a whole percentage of total, rounded, at least 2
// for any non-zero part so tiny bars stay visible.
func percentOf(part, total int64) int {
	if total <= 0 || part <= 0 {
		return 0
	}
	return clampPercent(ratioPercent(decimal.NewFromInt(part), decimal.NewFromInt(total)))
}

// incomeSplit shares 100% between income and expenses. The two totals may
// each be close to the int64 limit, so they are summed as decimals.
func incomeSplit(income, expenses int64) (incomePct, expensePct int) {
	in, out := decimal.NewFromInt(max(income, 0)), decimal.NewFromInt(max(expenses, 0))
	flow := in.Add(out)
	if !flow.IsPositive() {
		return 0, 0
	}
	if in.IsPositive() {
		incomePct = clampPercent(ratioPercent(in, flow))
	}
	if out.IsPositive() {
		expensePct = 100 - incomePct
	}
	return incomePct, expensePct
}

// ratioPercent rounds part/total*100 half-up.
func ratioPercent(part, total decimal.Decimal) int64 {
	return part.Mul(hundred).Div(total).Round(0).IntPart()
}

func clampPercent(p int64) int {
	pct := int(p)
	if pct < 2 {
		pct = 2
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// sanitizeInput removes control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
