package rates

import "myfinances/internal/core"

// fallbackEUR holds approximate rates against EUR used when no live rates are available.
var fallbackEUR = map[core.CurrencyCode]float64{
	core.USD: 1.10,
	core.CAD: 1.50,
	core.PLN: 4.30,
	"GBP":    0.85,
	"JPY":    165.0,
	"CHF":    0.95,
}

// FallbackTable returns the fallback rates for base. Rates for bases other
// than EUR are crossed through EUR; an unknown base yields an empty table.
func FallbackTable(base core.CurrencyCode) core.RateTable {
	t := core.NewRateTable(base)
	t.Source = core.SourceFallback

	if base == core.EUR {
		for c, v := range fallbackEUR {
			t.Rates[c] = v
		}
		return t
	}
	perEUR, ok := fallbackEUR[base]
	if !ok {
		return t
	}
	t.Rates[core.EUR] = 1 / perEUR
	for c, v := range fallbackEUR {
		if c != base {
			t.Rates[c] = v / perEUR
		}
	}
	return t
}
