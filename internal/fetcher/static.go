package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Static always returns the same quote. Used by simulate-alert.
type Static struct {
	quote Quote
}

// NewStatic builds a Static source from sell and buy rates.
func NewStatic(sell, buy decimal.Decimal) *Static {
	return &Static{quote: Quote{SellRate: sell, BuyRate: buy}}
}

func (s *Static) FetchRate(ctx context.Context) (Quote, error) {
	quote := s.quote
	quote.QuotedAt = time.Now().UTC()
	return quote, nil
}

var _ RateSource = (*Static)(nil)
