package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateLimited is returned when the source refuses the request for
	// exceeding its request quota.
	ErrRateLimited = errors.New("rate source: request limit exceeded")
	// ErrCurrencyNotFound is returned when the response has no entry for the
	// requested currency pair.
	ErrCurrencyNotFound = errors.New("rate source: currency not found")
	// ErrMissingRates is returned when the entry lacks a sell or buy rate.
	ErrMissingRates = errors.New("rate source: missing sell or buy rate")
)

// Quote is a sell/buy rate pair for one currency.
type Quote struct {
	CurrencyA int
	CurrencyB int
	SellRate  decimal.Decimal
	BuyRate   decimal.Decimal
	QuotedAt  time.Time
}

// RateSource retrieves the current quote for the configured currency.
type RateSource interface {
	FetchRate(ctx context.Context) (Quote, error)
}
