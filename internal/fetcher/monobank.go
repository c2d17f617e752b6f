package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	monobankCurrencyPath = "/bank/currency"

	// minIntervalSlack absorbs scheduler jitter when MinInterval equals the
	// polling period.
	minIntervalSlack = time.Second
)

// MonobankOptions parameterise the Monobank public rates fetcher.
type MonobankOptions struct {
	BaseURL string
	// CurrencyCode is the ISO 4217 numeric code of the quoted currency.
	CurrencyCode int
	// BaseCurrencyCode narrows the match to one pair; zero accepts any.
	BaseCurrencyCode int
	Timeout          time.Duration
	UserAgent        string
	// MinInterval spaces outgoing requests; calls inside it, less one second
	// of slack, fail with ErrRateLimited without reaching the API. Zero
	// disables the limit.
	MinInterval time.Duration
}

// Monobank fetches quotes from the public /bank/currency endpoint.
type Monobank struct {
	opts    MonobankOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewMonobank constructs a Monobank fetcher.
func NewMonobank(opts MonobankOptions, logger zerolog.Logger) *Monobank {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.monobank.ua"
	}

	var limiter *rate.Limiter
	if opts.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(limiterSpacing(opts.MinInterval)), 1)
	}

	return &Monobank{
		opts:    opts,
		limiter: limiter,
		logger:  logger.With().Str("component", "monobank_fetcher").Int("currency", opts.CurrencyCode).Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// limiterSpacing shortens interval by minIntervalSlack so a tick arriving
// slightly early still passes.
func limiterSpacing(interval time.Duration) time.Duration {
	if interval > 2*minIntervalSlack {
		return interval - minIntervalSlack
	}
	return interval
}

// FetchRate retrieves the current sell/buy quote for the configured currency.
func (m *Monobank) FetchRate(ctx context.Context) (Quote, error) {
	if m.opts.CurrencyCode <= 0 {
		return Quote{}, errors.New("currency code must be greater than zero")
	}
	if m.limiter != nil && !m.limiter.Allow() {
		return Quote{}, fmt.Errorf("%w: local request interval not elapsed", ErrRateLimited)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+monobankCurrencyPath, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "spreadwatcher/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("request rates: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("read rates response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusTooManyRequests {
		m.logger.Warn().Int("status", resp.StatusCode).Msg("rate source request limit exceeded")
		return Quote{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	return m.pickQuote(payload)
}

func (m *Monobank) pickQuote(payload []byte) (Quote, error) {
	if !gjson.ValidBytes(payload) {
		return Quote{}, errors.New("rates response is not valid json")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsArray() {
		return Quote{}, errors.New("rates response is not an array")
	}

	var entry gjson.Result
	root.ForEach(func(_, value gjson.Result) bool {
		if value.Get("currencyCodeA").Int() != int64(m.opts.CurrencyCode) {
			return true
		}
		if m.opts.BaseCurrencyCode > 0 && value.Get("currencyCodeB").Int() != int64(m.opts.BaseCurrencyCode) {
			return true
		}
		entry = value
		return false
	})
	if !entry.Exists() {
		m.logger.Warn().Msg("currency not found in rates response")
		return Quote{}, ErrCurrencyNotFound
	}

	sell, err := parseRate(entry.Get("rateSell"))
	if err != nil {
		return Quote{}, fmt.Errorf("rateSell: %w", err)
	}
	buy, err := parseRate(entry.Get("rateBuy"))
	if err != nil {
		return Quote{}, fmt.Errorf("rateBuy: %w", err)
	}

	quote := Quote{
		CurrencyA: int(entry.Get("currencyCodeA").Int()),
		CurrencyB: int(entry.Get("currencyCodeB").Int()),
		SellRate:  sell,
		BuyRate:   buy,
	}
	if unix := entry.Get("date").Int(); unix > 0 {
		quote.QuotedAt = time.Unix(unix, 0).UTC()
	}
	return quote, nil
}

// parseRate reads the literal JSON number so no float rounding is introduced.
func parseRate(value gjson.Result) (decimal.Decimal, error) {
	if !value.Exists() || value.Type == gjson.Null {
		return decimal.Decimal{}, ErrMissingRates
	}
	if value.Type != gjson.Number {
		return decimal.Decimal{}, fmt.Errorf("unexpected value %s: %w", value.Raw, ErrMissingRates)
	}
	parsed, err := decimal.NewFromString(value.Raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", value.Raw, err)
	}
	return parsed, nil
}

func parseHTTPError(status int, payload []byte) error {
	if desc := gjson.GetBytes(payload, "errorDescription"); desc.Exists() && desc.String() != "" {
		return fmt.Errorf("rates api error (%d): %s", status, desc.String())
	}
	if len(payload) > 0 {
		return fmt.Errorf("rates api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("rates api error (%d)", status)
}

var _ RateSource = (*Monobank)(nil)
