package core

import (
	"maps"
	"math"
	"time"
)

// RateSource tells where the values of a rate table came from.
type RateSource string

const (
	SourceNone      RateSource = "none"
	SourceLive      RateSource = "live"
	SourcePersisted RateSource = "persisted"
	SourceFallback  RateSource = "fallback"
)

// RateTable maps currency codes to the amount of that currency
// one unit of Base buys. Base itself is always 1 and need not be stored.
type RateTable struct {
	Base      CurrencyCode
	Rates     map[CurrencyCode]float64
	UpdatedAt time.Time // time of the last successful remote refresh
	Source    RateSource
}

// NewRateTable returns an empty table for base.
func NewRateTable(base CurrencyCode) RateTable {
	return RateTable{
		Base:   base,
		Rates:  make(map[CurrencyCode]float64),
		Source: SourceNone,
	}
}

// Rate returns the multiplier for c and whether the table knows it.
func (t RateTable) Rate(c CurrencyCode) (float64, bool) {
	if c == t.Base {
		return 1, true
	}
	v, ok := t.Rates[c]
	return v, ok
}

// IsLive reports whether the table holds rates from a successful remote refresh,
// either fetched by this process or loaded from a persisted copy.
func (t RateTable) IsLive() bool {
	return t.Source == SourceLive || t.Source == SourcePersisted
}

// Clone returns a deep copy of t.
func (t RateTable) Clone() RateTable {
	c := t
	c.Rates = maps.Clone(t.Rates)
	if c.Rates == nil {
		c.Rates = make(map[CurrencyCode]float64)
	}
	return c
}

// ValidRate reports whether v can be used as a conversion multiplier.
func ValidRate(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
