package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CurrencyAmounts is implemented by records which carry amounts
// in several currencies.
type CurrencyAmounts interface {
	// AmountIn returns the amount recorded in c, if any.
	AmountIn(c CurrencyCode) (float64, bool)
}

// Amounts holds the per currency columns of a record. Missing columns are nil.
type Amounts struct {
	EUR   *float64
	USD   *float64
	CAD   *float64
	PLN   *float64
	Other *float64
}

func (a Amounts) AmountIn(c CurrencyCode) (float64, bool) {
	var p *float64
	switch c {
	case EUR:
		p = a.EUR
	case USD:
		p = a.USD
	case CAD:
		p = a.CAD
	case PLN:
		p = a.PLN
	case Other:
		p = a.Other
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Entry is a single row of the expense or income ledger.
//
// On the wire an entry is a positional array:
// date, type, description, eur, usd, cad, pln, other, daily_total, bank.
// Trailing optional columns may be omitted.
type Entry struct {
	Date        string
	Type        string
	Description string
	Amounts
	DailyTotal *float64
	Bank       string
}

// Expense is a ledger row for money spent.
type Expense struct {
	Entry
}

// Income is a ledger row for money received.
type Income struct {
	Entry
}

var (
	_ CurrencyAmounts = Expense{}
	_ CurrencyAmounts = Income{}
)

var ErrMalformedRow = errors.New("malformed row")

const requiredColumns = 3

func (e *Entry) UnmarshalJSON(data []byte) error {
	var cols []json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(cols) < requiredColumns {
		return fmt.Errorf("%w: %d columns, want at least %d", ErrMalformedRow, len(cols), requiredColumns)
	}
	var x Entry
	for i, dst := range []*string{&x.Date, &x.Type, &x.Description} {
		if err := json.Unmarshal(cols[i], dst); err != nil {
			return fmt.Errorf("%w: column %d: %v", ErrMalformedRow, i, err)
		}
	}
	optional := []**float64{&x.EUR, &x.USD, &x.CAD, &x.PLN, &x.Other, &x.DailyTotal}
	for i, dst := range optional {
		idx := requiredColumns + i
		if idx >= len(cols) {
			break
		}
		if err := json.Unmarshal(cols[idx], dst); err != nil {
			return fmt.Errorf("%w: column %d: %v", ErrMalformedRow, idx, err)
		}
	}
	bankIdx := requiredColumns + len(optional)
	if bankIdx < len(cols) && !isNull(cols[bankIdx]) {
		if err := json.Unmarshal(cols[bankIdx], &x.Bank); err != nil {
			return fmt.Errorf("%w: column %d: %v", ErrMalformedRow, bankIdx, err)
		}
	}
	*e = x
	return nil
}

// ExpenseResponse is the body of GET /expenses and GET /expenses/{type}.
type ExpenseResponse struct {
	Columns  []string  `json:"columns"`
	Expenses []Expense `json:"expenses"`
}

// IncomeResponse is the body of GET /income.
type IncomeResponse struct {
	Columns []string `json:"columns"`
	Income  []Income `json:"income"`
}

// SummaryResponse is the body of GET /expenses_summary.
type SummaryResponse struct {
	Summary []SummaryItem `json:"summary"`
}

// SummaryItem aggregates the expenses of one category.
// Amounts are in the base currency.
type SummaryItem struct {
	Type           string  `json:"type"`
	TotalAmount    float64 `json:"tot"`
	AmountPerMonth float64 `json:"totpmth"`
	Pct            float64 `json:"pct"`
	NumberOfItems  int     `json:"n_items"`
}

// AveragePerItem returns the mean amount of the category's items.
func (s SummaryItem) AveragePerItem() float64 {
	if s.NumberOfItems == 0 {
		return 0
	}
	return s.TotalAmount / float64(s.NumberOfItems)
}

// UnmarshalJSON accepts both the keyed form and the positional form
// type, tot, totpmth, pct, n_items.
func (s *SummaryItem) UnmarshalJSON(data []byte) error {
	type keyed SummaryItem
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		var k keyed
		if err := json.Unmarshal(data, &k); err != nil {
			return err
		}
		*s = SummaryItem(k)
		return nil
	}
	var cols []json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	if len(cols) != 5 {
		return fmt.Errorf("%w: summary has %d columns, want 5", ErrMalformedRow, len(cols))
	}
	var x SummaryItem
	dsts := []any{&x.Type, &x.TotalAmount, &x.AmountPerMonth, &x.Pct, &x.NumberOfItems}
	for i, dst := range dsts {
		if err := json.Unmarshal(cols[i], dst); err != nil {
			return fmt.Errorf("%w: summary column %d: %v", ErrMalformedRow, i, err)
		}
	}
	*s = x
	return nil
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
