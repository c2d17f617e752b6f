package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const sampleRates = `[
  {"currencyCodeA":978,"currencyCodeB":980,"date":1700000000,"rateBuy":40.1,"rateSell":40.9},
  {"currencyCodeA":840,"currencyCodeB":985,"date":1700000000,"rateCross":3.9},
  {"currencyCodeA":840,"currencyCodeB":980,"date":1700000100,"rateBuy":27.10,"rateSell":27.50,"rateCross":0},
  {"currencyCodeA":826,"currencyCodeB":980,"date":1700000000,"rateCross":50.2}
]`

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestMonobank(url string, currency, base int) *Monobank {
	return NewMonobank(MonobankOptions{
		BaseURL:          url,
		CurrencyCode:     currency,
		BaseCurrencyCode: base,
		Timeout:          time.Second,
		UserAgent:        "test",
	}, noopLogger())
}

func serve(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestMonobankFetchSuccess(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(sampleRates))
	}))
	defer srv.Close()

	quote, err := newTestMonobank(srv.URL, 840, 980).FetchRate(context.Background())
	if err != nil {
		t.Fatalf("FetchRate: %v", err)
	}
	if path != "/bank/currency" {
		t.Fatalf("unexpected path %s", path)
	}
	if !quote.SellRate.Equal(decimal.RequireFromString("27.50")) || !quote.BuyRate.Equal(decimal.RequireFromString("27.10")) {
		t.Fatalf("unexpected quote %s/%s", quote.SellRate, quote.BuyRate)
	}
	if quote.CurrencyB != 980 {
		t.Fatalf("unexpected base currency %d", quote.CurrencyB)
	}
	if quote.QuotedAt.Unix() != 1700000100 {
		t.Fatalf("unexpected quote time %s", quote.QuotedAt)
	}
}

func TestMonobankFirstMatchWithoutBaseFilter(t *testing.T) {
	srv := serve(http.StatusOK, sampleRates)
	defer srv.Close()

	_, err := newTestMonobank(srv.URL, 840, 0).FetchRate(context.Background())
	if !errors.Is(err, ErrMissingRates) {
		t.Fatalf("first 840 entry has no sell/buy, want ErrMissingRates, got %v", err)
	}
}

func TestMonobankRateLimited(t *testing.T) {
	srv := serve(http.StatusConflict, `{"errorDescription":"Too many requests"}`)
	defer srv.Close()

	_, err := newTestMonobank(srv.URL, 840, 980).FetchRate(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
}

func TestMonobankCurrencyNotFound(t *testing.T) {
	srv := serve(http.StatusOK, sampleRates)
	defer srv.Close()

	_, err := newTestMonobank(srv.URL, 392, 980).FetchRate(context.Background())
	if !errors.Is(err, ErrCurrencyNotFound) {
		t.Fatalf("want ErrCurrencyNotFound, got %v", err)
	}
}

func TestMonobankHTTPError(t *testing.T) {
	srv := serve(http.StatusInternalServerError, `{"errorDescription":"unavailable"}`)
	defer srv.Close()

	_, err := newTestMonobank(srv.URL, 840, 980).FetchRate(context.Background())
	if err == nil {
		t.Fatal("HTTP 500 should fail")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("HTTP 500 is not a rate limit")
	}
}

func TestMonobankInvalidJSON(t *testing.T) {
	srv := serve(http.StatusOK, `{"not":"an array"}`)
	defer srv.Close()

	if _, err := newTestMonobank(srv.URL, 840, 980).FetchRate(context.Background()); err == nil {
		t.Fatal("non-array response should fail")
	}
}

func TestMonobankTransportError(t *testing.T) {
	srv := serve(http.StatusOK, sampleRates)
	url := srv.URL
	srv.Close()

	if _, err := newTestMonobank(url, 840, 980).FetchRate(context.Background()); err == nil {
		t.Fatal("closed server should fail")
	}
}

func TestMonobankMinInterval(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(sampleRates))
	}))
	defer srv.Close()

	m := NewMonobank(MonobankOptions{
		BaseURL:      srv.URL,
		CurrencyCode: 840,
		Timeout:      time.Second,
		MinInterval:  time.Hour,
	}, noopLogger())

	if _, err := m.FetchRate(context.Background()); err != nil {
		t.Fatalf("first FetchRate: %v", err)
	}
	if _, err := m.FetchRate(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 request, got %d", calls)
	}
}

func TestMonobankMinIntervalToleratesEarlyTick(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(sampleRates))
	}))
	defer srv.Close()

	// a scheduler ticking every 3s may fire a little before 3s have passed
	// since the previous request
	m := NewMonobank(MonobankOptions{
		BaseURL:      srv.URL,
		CurrencyCode: 840,
		Timeout:      time.Second,
		MinInterval:  3 * time.Second,
	}, noopLogger())

	if _, err := m.FetchRate(context.Background()); err != nil {
		t.Fatalf("first FetchRate: %v", err)
	}
	if _, err := m.FetchRate(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited right away, got %v", err)
	}

	time.Sleep(2*time.Second + 100*time.Millisecond)
	if _, err := m.FetchRate(context.Background()); err != nil {
		t.Fatalf("early tick rejected: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
}

func TestLimiterSpacing(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		time.Minute:            59 * time.Second,
		5 * time.Minute:        5*time.Minute - time.Second,
		2 * time.Second:        2 * time.Second,
		500 * time.Millisecond: 500 * time.Millisecond,
	}
	for in, want := range cases {
		if got := limiterSpacing(in); got != want {
			t.Errorf("limiterSpacing(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStatic(decimal.RequireFromString("27.5"), decimal.RequireFromString("27.1"))
	quote, err := src.FetchRate(context.Background())
	if err != nil {
		t.Fatalf("FetchRate: %v", err)
	}
	if !quote.SellRate.Equal(decimal.RequireFromString("27.5")) {
		t.Fatalf("unexpected sell %s", quote.SellRate)
	}
}
