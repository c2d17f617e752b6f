package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-alerts/internal/config"
	"spread-alerts/internal/storage"
)

const monobankRates = `[
  {"currencyCodeA":840,"currencyCodeB":980,"date":1700000100,"rateBuy":27.10,"rateSell":27.50},
  {"currencyCodeA":978,"currencyCodeB":980,"date":1700000000,"rateBuy":40.1,"rateSell":40.9}
]`

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Source: config.SourceConfig{
			BaseURL:          baseURL,
			CurrencyCode:     840,
			BaseCurrencyCode: 980,
			RequestTimeout:   time.Second,
		},
		Tracker: config.TrackerConfig{
			Window:             30 * 24 * time.Hour,
			FavorableThreshold: 0.40,
			Precision:          2,
			HistoryBackend:     config.BackendFile,
			SignalBackend:      config.BackendFile,
			HistoryPath:        filepath.Join(dir, "currency_history.csv"),
			LastSignalPath:     filepath.Join(dir, "mono_currency.txt"),
			LockTimeout:        time.Second,
		},
		Scheduler: config.SchedulerConfig{Interval: 5 * time.Minute},
		Alerting:  config.AlertingConfig{Enabled: true},
		Metrics:   config.MetricsConfig{TextfilePath: filepath.Join(dir, "spreadwatcher.prom")},
		Export:    config.ExportConfig{MaxDataPoints: 1000},
	}
}

func rateServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunOnceWithFileBackends(t *testing.T) {
	srv := rateServer(t, http.StatusOK, monobankRates)
	cfg := testConfig(t, srv.URL)
	a := NewApp(cfg, zerolog.Nop())

	require.NoError(t, a.RunOnce(context.Background()))

	history, err := os.ReadFile(cfg.Tracker.HistoryPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(history)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], ",27.5,27.1"), lines[0])

	signal, err := os.ReadFile(cfg.Tracker.LastSignalPath)
	require.NoError(t, err)
	assert.Equal(t, "0.40", string(signal))

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `spreadwatcher_runs_total{outcome="notified"} 1`)

	// same rates again: no new history row, no new alert
	require.NoError(t, a.RunOnce(context.Background()))
	history, err = os.ReadFile(cfg.Tracker.HistoryPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(history)), "\n"), 1)
}

func TestRunOnceSourceUnavailableIsNotAnError(t *testing.T) {
	srv := rateServer(t, http.StatusTooManyRequests, `{"errorDescription":"Too many requests"}`)
	cfg := testConfig(t, srv.URL)

	require.NoError(t, NewApp(cfg, zerolog.Nop()).RunOnce(context.Background()))

	_, err := os.Stat(cfg.Tracker.HistoryPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.Tracker.LastSignalPath)
	assert.True(t, os.IsNotExist(err))
}

func writeLegacyHistory(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "legacy.csv")
	content := "2024-01-01T00:00,27.00,26.80\n" +
		"2024-01-01T00:05,27.00,26.80\n" +
		"2024-01-02T10:00:00,27.10,26.70\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportDryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t, "")
	source := writeLegacyHistory(t, t.TempDir())

	result, err := NewApp(cfg, zerolog.Nop()).Import(context.Background(), ImportOptions{Source: source, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 3, Appended: 2, Skipped: 1}, result)

	_, err = os.Stat(cfg.Tracker.HistoryPath)
	assert.True(t, os.IsNotExist(err))
}

func TestImportIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "")
	source := writeLegacyHistory(t, t.TempDir())
	a := NewApp(cfg, zerolog.Nop())

	first, err := a.Import(context.Background(), ImportOptions{Source: source})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Appended)

	second, err := a.Import(context.Background(), ImportOptions{Source: source})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 3, Appended: 0, Skipped: 3}, second)
}

func TestImportRejectsOwnHistory(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := NewApp(cfg, zerolog.Nop()).Import(context.Background(), ImportOptions{Source: cfg.Tracker.HistoryPath})
	require.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	cfg := testConfig(t, "")
	source := writeLegacyHistory(t, t.TempDir())
	a := NewApp(cfg, zerolog.Nop())
	_, err := a.Import(context.Background(), ImportOptions{Source: source})
	require.NoError(t, err)

	from := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	out := filepath.Join(t.TempDir(), "export", "history.csv")
	require.NoError(t, a.Export(context.Background(), ExportOptions{From: &from, To: &to, CSVPath: out}))

	file, err := os.Open(out)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"timestamp", "sell_rate", "buy_rate", "spread"}, records[0])
	assert.Equal(t, "0.2", records[1][3])
	assert.Equal(t, "0.4", records[2][3])
}

func TestExportRequiresOutput(t *testing.T) {
	cfg := testConfig(t, "")
	require.Error(t, NewApp(cfg, zerolog.Nop()).Export(context.Background(), ExportOptions{}))
}

func TestDownsampleObservationsKeepsEnds(t *testing.T) {
	cfg := testConfig(t, "")
	source := writeLegacyHistory(t, t.TempDir())
	a := NewApp(cfg, zerolog.Nop())
	_, err := a.Import(context.Background(), ImportOptions{Source: source})
	require.NoError(t, err)

	observations, err := a.mustHistory(t).ListBetween(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	sampled := downsampleObservations(observations, 2)
	require.Len(t, sampled, 2)
	assert.True(t, sampled[0].Timestamp.Equal(observations[0].Timestamp))
	assert.True(t, sampled[1].Timestamp.Equal(observations[len(observations)-1].Timestamp))
}

func TestShowPrintsWindowAndSignal(t *testing.T) {
	cfg := testConfig(t, "")
	now := time.Now().UTC().Truncate(time.Minute)
	content := now.Add(-time.Hour).Format(time.RFC3339Nano) + ",27.00,26.80\n" +
		now.Format(time.RFC3339Nano) + ",27.10,26.70\n"
	require.NoError(t, os.WriteFile(cfg.Tracker.HistoryPath, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(cfg.Tracker.LastSignalPath, []byte("0.40"), 0o644))

	var out bytes.Buffer
	require.NoError(t, NewApp(cfg, zerolog.Nop()).show(context.Background(), ShowOptions{Limit: 10}, &out))

	text := out.String()
	assert.Contains(t, text, "Spread")
	assert.Contains(t, text, "avg 0.30, max 0.40, min 0.20")
	assert.Contains(t, text, "last alerted spread: 0.40")
}

func TestSimulateLeavesStateUntouched(t *testing.T) {
	cfg := testConfig(t, "")
	require.NoError(t, os.WriteFile(cfg.Tracker.LastSignalPath, []byte("0.40"), 0o644))

	var out bytes.Buffer
	err := NewApp(cfg, zerolog.Nop()).simulate(
		context.Background(),
		decimal.RequireFromString("27.39"),
		decimal.RequireFromString("27.00"),
		&out,
	)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "`0.39`")
	assert.Contains(t, out.String(), "Good time to exchange")

	signal, err := os.ReadFile(cfg.Tracker.LastSignalPath)
	require.NoError(t, err)
	assert.Equal(t, "0.40", string(signal))
	_, err = os.Stat(cfg.Tracker.HistoryPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSimulateRequiresAlerting(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Alerting.Enabled = false
	err := NewApp(cfg, zerolog.Nop()).SimulateAlert(context.Background(), decimal.NewFromInt(2), decimal.NewFromInt(1))
	require.Error(t, err)
}

func (a *App) mustHistory(t *testing.T) storage.HistoryStore {
	t.Helper()
	st, err := a.openStores(context.Background())
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st.history
}
