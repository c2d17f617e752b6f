package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"spread-alerts/internal/config"
	"spread-alerts/internal/storage"
)

// ImportResult summarises an import run.
type ImportResult struct {
	Read     int
	Appended int
	Skipped  int
}

// Import copies observations from a history CSV into the configured history
// backend. Rows at or before the newest stored timestamp are skipped, and
// the target store drops consecutive duplicates.
func (a *App) Import(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	if opts.Source == "" {
		return ImportResult{}, errors.New("source csv is required")
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && !opts.From.Before(opts.To) {
		return ImportResult{}, errors.New("import range is empty, check --from/--to")
	}
	if a.Config.Tracker.HistoryBackend == config.BackendFile && samePath(opts.Source, a.Config.Tracker.HistoryPath) {
		return ImportResult{}, errors.New("source csv is the configured history file")
	}

	source := storage.NewFileHistory(opts.Source, a.Config.Tracker.LockTimeout)
	observations, err := source.ListBetween(ctx, opts.From, opts.To)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", opts.Source, err)
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	defer st.Close()

	existing, err := st.history.ListBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		return ImportResult{}, fmt.Errorf("read target history: %w", err)
	}
	var latest time.Time
	for _, obs := range existing {
		if obs.Timestamp.After(latest) {
			latest = obs.Timestamp
		}
	}

	target := st.history
	if opts.DryRun {
		a.Logger.Warn().Msg("import dry-run: nothing will be written")
		target = storage.NewMemoryHistory(existing...)
	}

	result := ImportResult{Read: len(observations)}
	for _, obs := range observations {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if !latest.IsZero() && !obs.Timestamp.After(latest) {
			result.Skipped++
			continue
		}

		appended, err := target.Append(ctx, obs)
		if err != nil {
			a.Logger.Error().Err(err).Time("timestamp", obs.Timestamp).Msg("import failed")
			return result, err
		}
		if appended {
			result.Appended++
		} else {
			result.Skipped++
		}
	}

	a.Logger.Info().
		Int("read", result.Read).
		Int("appended", result.Appended).
		Int("skipped", result.Skipped).
		Bool("dry_run", opts.DryRun).
		Msg("import complete")
	return result, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
