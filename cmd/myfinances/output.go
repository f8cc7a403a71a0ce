package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"myfinances/internal/api"
	"myfinances/internal/core"
	"myfinances/internal/report"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func expenseEntries(records []core.Expense) []core.Entry {
	out := make([]core.Entry, len(records))
	for i, r := range records {
		out[i] = r.Entry
	}
	return out
}

func incomeEntries(records []core.Income) []core.Entry {
	out := make([]core.Entry, len(records))
	for i, r := range records {
		out[i] = r.Entry
	}
	return out
}

func formatOptional(v float64, ok bool, c core.CurrencyCode) string {
	if !ok {
		return "-"
	}
	return core.FormatAmount(&v, c)
}

func printEntries(w io.Writer, entries []core.Entry, to core.CurrencyCode, conv report.Converter) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tTYPE\tDESCRIPTION\tAMOUNT\tBANK")
	for _, e := range entries {
		v, ok := report.AmountFor(e, to, conv)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Date, e.Type, e.Description, formatOptional(v, ok, to), e.Bank)
	}
	tw.Flush()

	total, n := report.Totals(entries, to, conv)
	fmt.Fprintf(w, "\n%d of %d entries, total %s\n", n, len(entries), core.FormatAmount(&total, to))
}

func printSummary(w io.Writer, items []core.SummaryItem, to core.CurrencyCode, conv report.Converter) {
	stats := report.Summarize(items)
	total := report.FromEUR(stats.Total, to, conv)
	avg := report.FromEUR(stats.AveragePerCategory, to, conv)
	fmt.Fprintf(w, "%d categories, %d items, total %s, %s per category\n\n",
		stats.Categories, stats.Items, core.FormatAmount(&total, to), core.FormatAmount(&avg, to))

	tw := newTable(w)
	fmt.Fprintln(tw, "TYPE\tTOTAL\tPER MONTH\tPER ITEM\tSHARE\tITEMS")
	for _, r := range report.SummaryRows(items, to, conv) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%d\n",
			r.Type,
			core.FormatAmount(&r.Total, to),
			core.FormatAmount(&r.PerMonth, to),
			core.FormatAmount(&r.AveragePerItem, to),
			r.Pct, r.Items)
	}
	tw.Flush()
}

func printRates(w io.Writer, table core.RateTable, now time.Time) {
	updated := "never"
	if !table.UpdatedAt.IsZero() {
		updated = humanize.RelTime(table.UpdatedAt, now, "ago", "from now")
	}
	fmt.Fprintf(w, "Base %s, source %s, updated %s\n", table.Base, table.Source, updated)

	tw := newTable(w)
	for _, c := range slices.Sorted(maps.Keys(table.Rates)) {
		fmt.Fprintf(tw, "%s\t%.4f\n", c, table.Rates[c])
	}
	tw.Flush()
}

func printOverview(w io.Writer, o *api.Overview, to core.CurrencyCode, conv report.Converter) {
	spent, ne := report.Totals(o.Expenses, to, conv)
	earned, ni := report.Totals(o.Income, to, conv)
	net := earned - spent
	stats := report.Summarize(o.Summary)

	tw := newTable(w)
	fmt.Fprintf(tw, "Expenses\t%d\t%s\n", ne, core.FormatAmount(&spent, to))
	fmt.Fprintf(tw, "Income\t%d\t%s\n", ni, core.FormatAmount(&earned, to))
	fmt.Fprintf(tw, "Net\t\t%s\n", core.FormatAmount(&net, to))
	fmt.Fprintf(tw, "Categories\t%d\t\n", stats.Categories)
	tw.Flush()
}
