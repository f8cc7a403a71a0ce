// Package report derives statistics and converted views from fetched records.
//
// Amounts reported by the finance API are in EUR. They are converted with
// cross rates, so any converter base currency works.
package report

import "myfinances/internal/core"

// Converter returns the multiplier converting one unit of its base currency into to.
// Implemented by rates.Cache.
type Converter interface {
	Rate(to core.CurrencyCode) float64
}

// FromEUR converts a EUR amount into to.
func FromEUR(amount float64, to core.CurrencyCode, conv Converter) float64 {
	if to == core.EUR || to == core.Other {
		return amount
	}
	return amount * conv.Rate(to) / conv.Rate(core.EUR)
}

// Stats are headline figures over a summary, in EUR.
type Stats struct {
	Categories         int
	Items              int
	Total              float64
	AveragePerCategory float64
}

func Summarize(items []core.SummaryItem) Stats {
	var s Stats
	for _, it := range items {
		s.Categories++
		s.Items += it.NumberOfItems
		s.Total += it.TotalAmount
	}
	if s.Categories > 0 {
		s.AveragePerCategory = s.Total / float64(s.Categories)
	}
	return s
}

// Row is one summary category converted into a display currency.
type Row struct {
	Type           string
	Total          float64
	PerMonth       float64
	AveragePerItem float64
	Pct            float64
	Items          int
}

// SummaryRows converts every summary item into to, keeping the input order.
func SummaryRows(items []core.SummaryItem, to core.CurrencyCode, conv Converter) []Row {
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, Row{
			Type:           it.Type,
			Total:          FromEUR(it.TotalAmount, to, conv),
			PerMonth:       FromEUR(it.AmountPerMonth, to, conv),
			AveragePerItem: FromEUR(it.AveragePerItem(), to, conv),
			Pct:            it.Pct,
			Items:          it.NumberOfItems,
		})
	}
	return rows
}

// AmountFor returns the amount of r in to. The amount recorded in to is
// preferred; otherwise the EUR amount is converted. It reports false when
// r carries neither.
func AmountFor(r core.CurrencyAmounts, to core.CurrencyCode, conv Converter) (float64, bool) {
	if v, ok := r.AmountIn(to); ok {
		return v, true
	}
	if to == core.Other {
		return 0, false
	}
	if eur, ok := r.AmountIn(core.EUR); ok {
		return FromEUR(eur, to, conv), true
	}
	return 0, false
}

// Totals sums the amounts of records in to and returns how many records had one.
func Totals[R core.CurrencyAmounts](records []R, to core.CurrencyCode, conv Converter) (float64, int) {
	var sum float64
	var n int
	for _, r := range records {
		if v, ok := AmountFor(r, to, conv); ok {
			sum += v
			n++
		}
	}
	return sum, n
}
