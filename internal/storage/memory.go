package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryHistory is an in-process HistoryStore used for simulations.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Observation
}

// NewMemoryHistory seeds a history with existing entries.
func NewMemoryHistory(seed ...Observation) *MemoryHistory {
	entries := make([]Observation, len(seed))
	copy(entries, seed)
	return &MemoryHistory{entries: entries}
}

// Append stores obs unless it repeats the rates of the latest entry.
func (m *MemoryHistory) Append(_ context.Context, obs Observation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.entries); n > 0 && m.entries[n-1].SameRates(obs) {
		return false, nil
	}
	m.entries = append(m.entries, obs)
	return true, nil
}

// LoadWindow returns entries with timestamp >= now-window.
func (m *MemoryHistory) LoadWindow(ctx context.Context, now time.Time, window time.Duration) ([]Observation, error) {
	return m.ListBetween(ctx, windowStart(now, window), time.Time{})
}

// ListBetween returns entries within [from, to); a zero to is unbounded.
func (m *MemoryHistory) ListBetween(_ context.Context, from, to time.Time) ([]Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Observation, 0, len(m.entries))
	for _, obs := range m.entries {
		if inRange(obs.Timestamp, from, to) {
			result = append(result, obs)
		}
	}
	return result, nil
}

// Len returns the number of stored entries.
func (m *MemoryHistory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MemorySignal is an in-process SignalStore.
type MemorySignal struct {
	mu    sync.Mutex
	value string
	set   bool
}

// NewMemorySignal returns a store holding value, or an empty one when value is "".
func NewMemorySignal(value string) *MemorySignal {
	return &MemorySignal{value: value, set: value != ""}
}

// Load returns the stored spread and whether one is set.
func (m *MemorySignal) Load(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.set, nil
}

// Save replaces the stored spread.
func (m *MemorySignal) Save(_ context.Context, spread string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = spread
	m.set = true
	return nil
}

var (
	_ HistoryStore = (*MemoryHistory)(nil)
	_ SignalStore  = (*MemorySignal)(nil)
)
