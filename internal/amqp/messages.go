package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"myfinances/internal/core"
)

// RatesUpdatedMessage announces a successful exchange rate refresh.
// It carries the complete table, so consumers need no other source.
type RatesUpdatedMessage struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	UpdatedAt time.Time          `json:"updated_at"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewRatesUpdatedMessage creates a message for table
func NewRatesUpdatedMessage(table core.RateTable) *RatesUpdatedMessage {
	rates := make(map[string]float64, len(table.Rates))
	for c, v := range table.Rates {
		rates[string(c)] = v
	}
	return &RatesUpdatedMessage{
		Base:      string(table.Base),
		Rates:     rates,
		UpdatedAt: table.UpdatedAt,
		Source:    string(table.Source),
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RatesUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RatesUpdatedMessageFromJSON creates a message from JSON bytes
func RatesUpdatedMessageFromJSON(data []byte) (*RatesUpdatedMessage, error) {
	var msg RatesUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Base == "" {
		return nil, errors.New("message has no base currency")
	}
	return &msg, nil
}

// Table returns the rate table carried by m. Invalid rates are dropped.
func (m *RatesUpdatedMessage) Table() core.RateTable {
	t := core.NewRateTable(core.CurrencyCode(m.Base))
	for c, v := range m.Rates {
		if core.ValidRate(v) && core.CurrencyCode(c) != t.Base {
			t.Rates[core.CurrencyCode(c)] = v
		}
	}
	t.UpdatedAt = m.UpdatedAt
	t.Source = core.RateSource(m.Source)
	return t
}
