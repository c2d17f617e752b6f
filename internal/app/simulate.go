package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"spread-alerts/internal/fetcher"
	"spread-alerts/internal/metrics"
	"spread-alerts/internal/service"
	"spread-alerts/internal/storage"
)

// SimulateAlert evaluates a synthetic quote against the real trend window
// and delivers the resulting alert. Stored history and the last signal
// are left untouched.
func (a *App) SimulateAlert(ctx context.Context, sell, buy decimal.Decimal) error {
	return a.simulate(ctx, sell, buy, os.Stdout)
}

func (a *App) simulate(ctx context.Context, sell, buy decimal.Decimal, out io.Writer) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	seed := a.seedWindow(ctx)
	opts := a.serviceOptions()
	opts.AdvisoryLockKey = 0
	opts.MetricsTextfile = ""

	svc := service.New(opts, service.Dependencies{
		Source:   fetcher.NewStatic(sell, buy),
		History:  storage.NewMemoryHistory(seed...),
		Signals:  storage.NewMemorySignal(""),
		Notifier: notifier,
		Metrics:  metrics.NewCollector(),
	}, a.Logger)

	decision, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, decision.Message)
	if !decision.Delivered {
		return errors.New("simulated alert was not delivered, check logs")
	}
	return nil
}

// seedWindow copies the stored trend window so the simulation reports a
// realistic history. Failures leave the simulation with an empty window.
func (a *App) seedWindow(ctx context.Context) []storage.Observation {
	st, err := a.openStores(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("history unavailable for simulation")
		return nil
	}
	defer st.Close()

	window, err := st.history.LoadWindow(ctx, time.Now(), a.Config.Tracker.Window)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("history unavailable for simulation")
		return nil
	}
	return window
}
