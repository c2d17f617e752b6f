package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is a single sell/buy quote recorded at a point in time.
type Observation struct {
	Timestamp time.Time
	SellRate  decimal.Decimal
	BuyRate   decimal.Decimal
}

// Spread returns sell minus buy. Values are not validated, so a quote with
// buy above sell yields a negative spread.
func (o Observation) Spread() decimal.Decimal {
	return o.SellRate.Sub(o.BuyRate)
}

// SameRates reports whether both rates equal the other observation's.
func (o Observation) SameRates(other Observation) bool {
	return o.SellRate.Equal(other.SellRate) && o.BuyRate.Equal(other.BuyRate)
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID           int64
	CurrencyCode int
	Spread       string
	CreatedAt    time.Time
}
