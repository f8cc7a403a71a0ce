// Package core contains the domain types shared by the finance client:
// currency codes, the session token, the exchange rate table, the records
// returned by the finance API and the error taxonomy.
package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyCode is an upper case ISO 4217 code, or OTHER for amounts
// recorded in a currency the backend does not track individually.
type CurrencyCode string

const (
	EUR   CurrencyCode = "EUR"
	USD   CurrencyCode = "USD"
	CAD   CurrencyCode = "CAD"
	PLN   CurrencyCode = "PLN"
	Other CurrencyCode = "OTHER"
)

// SupportedCurrencies lists the currencies a user can select for display,
// in display order.
var SupportedCurrencies = []CurrencyCode{EUR, USD, CAD, PLN, Other}

var ErrInvalidCurrency = errors.New("invalid currency code")

// ParseCurrencyCode normalizes s and validates it against ISO 4217.
// OTHER is accepted as is.
func ParseCurrencyCode(s string) (CurrencyCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == string(Other) {
		return Other, nil
	}
	u, err := currency.ParseISO(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return CurrencyCode(u.String()), nil
}

// IsSupported reports whether c is one of the selectable currencies.
func (c CurrencyCode) IsSupported() bool {
	for _, x := range SupportedCurrencies {
		if x == c {
			return true
		}
	}
	return false
}

// Symbol returns the display symbol of c.
func (c CurrencyCode) Symbol() string {
	switch c {
	case EUR:
		return "€"
	case USD:
		return "$"
	case CAD:
		return "CA$"
	case PLN:
		return "zł"
	case Other:
		return "¤"
	}
	return string(c) + " "
}

// Name returns the English display name of c.
func (c CurrencyCode) Name() string {
	switch c {
	case EUR:
		return "Euro"
	case USD:
		return "US Dollar"
	case CAD:
		return "Canadian Dollar"
	case PLN:
		return "Polish Złoty"
	case Other:
		return "Other Currency"
	}
	return string(c)
}

func (c CurrencyCode) String() string {
	return string(c)
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders amount with the symbol of c and two decimals.
// A missing amount renders as zero.
func FormatAmount(amount *float64, c CurrencyCode) string {
	var v float64
	if amount != nil {
		v = *amount
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + c.Symbol() + printer.Sprintf("%.2f", v)
}
