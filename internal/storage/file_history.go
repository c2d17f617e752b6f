package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 2 * time.Second

// Layouts accepted when reading timestamps. Zone-less values are read in
// local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FileHistory keeps observations in a CSV file of timestamp,sell,buy rows.
// A missing file and an empty file both read as an empty history.
type FileHistory struct {
	path        string
	lockTimeout time.Duration
}

// NewFileHistory returns a CSV-backed history at path.
func NewFileHistory(path string, lockTimeout time.Duration) *FileHistory {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &FileHistory{path: path, lockTimeout: lockTimeout}
}

// Append writes obs unless the last stored row carries the same rates.
func (h *FileHistory) Append(ctx context.Context, obs Observation) (bool, error) {
	if err := ensureParentDir(h.path); err != nil {
		return false, err
	}

	unlock, err := acquireFileLock(ctx, h.path+".lock", h.lockTimeout)
	if err != nil {
		return false, err
	}
	defer unlock()

	data, err := os.ReadFile(h.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read history: %w", err)
	}

	if last, ok := lastObservation(data); ok && last.SameRates(obs) {
		return false, nil
	}

	file, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open history: %w", err)
	}

	var buf bytes.Buffer
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	writer := csv.NewWriter(&buf)
	if err := writer.Write(encodeObservation(obs)); err != nil {
		_ = file.Close()
		return false, fmt.Errorf("encode observation: %w", err)
	}
	writer.Flush()

	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = file.Close()
		return false, fmt.Errorf("append history: %w", err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("close history: %w", err)
	}
	return true, nil
}

// LoadWindow returns rows with timestamp >= now-window. Any malformed row
// fails the whole read with an empty result.
func (h *FileHistory) LoadWindow(ctx context.Context, now time.Time, window time.Duration) ([]Observation, error) {
	return h.ListBetween(ctx, windowStart(now, window), time.Time{})
}

// ListBetween returns rows in [from, to); a zero to is unbounded.
func (h *FileHistory) ListBetween(_ context.Context, from, to time.Time) ([]Observation, error) {
	records, err := h.readAll()
	if err != nil {
		return []Observation{}, err
	}

	result := make([]Observation, 0, len(records))
	for i, record := range records {
		obs, err := decodeObservation(record)
		if err != nil {
			return []Observation{}, fmt.Errorf("history row %d: %w", i+1, err)
		}
		if inRange(obs.Timestamp, from, to) {
			result = append(result, obs)
		}
	}
	return result, nil
}

// Count returns the number of stored rows.
func (h *FileHistory) Count(_ context.Context) (int, error) {
	records, err := h.readAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (h *FileHistory) readAll() ([][]string, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	return parseRecords(data)
}

func parseRecords(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return records, nil
}

// lastObservation decodes the final row. A last row that cannot be decoded
// is not comparable, so the caller appends.
func lastObservation(data []byte) (Observation, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Observation{}, false
	}
	records, err := parseRecords(data)
	if err != nil || len(records) == 0 {
		return Observation{}, false
	}
	obs, err := decodeObservation(records[len(records)-1])
	if err != nil {
		return Observation{}, false
	}
	return obs, true
}

func encodeObservation(obs Observation) []string {
	return []string{
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
		obs.SellRate.String(),
		obs.BuyRate.String(),
	}
}

func decodeObservation(record []string) (Observation, error) {
	if len(record) < 3 {
		return Observation{}, fmt.Errorf("expected 3 fields, got %d", len(record))
	}
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return Observation{}, err
	}
	sell, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return Observation{}, fmt.Errorf("parse sell rate: %w", err)
	}
	buy, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return Observation{}, fmt.Errorf("parse buy rate: %w", err)
	}
	return Observation{Timestamp: ts, SellRate: sell, BuyRate: buy}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", raw)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

var _ HistoryStore = (*FileHistory)(nil)
