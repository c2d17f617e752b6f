package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"spread-alerts/internal/metrics"
	"spread-alerts/internal/storage"
	"spread-alerts/internal/trend"
)

var hundred = decimal.NewFromInt(100)

// Decision is the outcome of evaluating one observation.
type Decision struct {
	Observation storage.Observation
	// Spread is sell-buy formatted to the configured precision; it is the
	// unit of change detection.
	Spread    string
	SpreadPct string
	Favorable bool

	Previous    string
	HasPrevious bool

	Trend   trend.Summary
	TrendOK bool

	Appended  bool
	Notify    bool
	Message   string
	Delivered bool
	Skipped   bool
}

// Evaluate records obs, summarises the window and decides whether the
// rounded spread differs from the last alerted one. Persistence and delivery
// failures are logged and leave a degraded but valid decision.
func (s *Service) Evaluate(ctx context.Context, obs storage.Observation) Decision {
	now := obs.Timestamp
	if now.IsZero() {
		now = s.now()
		obs.Timestamp = now
	}

	d := Decision{Observation: obs}
	d.Appended = s.appendHistory(ctx, obs)

	window := s.loadWindow(ctx, now)
	d.Trend, d.TrendOK = trend.Summarize(window)
	if d.TrendOK {
		s.logger.Info().
			Str("avg", d.Trend.Average.StringFixed(s.opts.Precision)).
			Str("max", d.Trend.Max.StringFixed(s.opts.Precision)).
			Str("min", d.Trend.Min.StringFixed(s.opts.Precision)).
			Int("observations", d.Trend.Count).
			Msg("historical spread")
	}

	spread := obs.Spread()
	rounded := spread.Round(s.opts.Precision)
	d.Spread = spread.StringFixed(s.opts.Precision)
	d.SpreadPct = "n/a"
	if !obs.BuyRate.IsZero() {
		d.SpreadPct = rounded.Mul(hundred).Div(obs.BuyRate).StringFixed(s.opts.Precision)
	}
	d.Favorable = spread.LessThan(s.opts.FavorableThreshold)
	s.metrics.SetSpread(spread.InexactFloat64(), len(window))

	d.Previous, d.HasPrevious = s.loadSignal(ctx)
	if d.HasPrevious && d.Previous == d.Spread {
		s.logger.Info().Str("spread", d.Spread).Msg("no change in spread, no message sent")
		s.metrics.ObserveRun(metrics.OutcomeUnchanged, now)
		return d
	}

	d.Notify = true
	d.Message = renderMessage(messageView{
		Currency:  currencyLabel(s.opts.CurrencyID),
		Spread:    d.Spread,
		SellRate:  obs.SellRate.StringFixed(s.opts.Precision),
		BuyRate:   obs.BuyRate.StringFixed(s.opts.Precision),
		SpreadPct: d.SpreadPct,
		Threshold: s.opts.FavorableThreshold.StringFixed(s.opts.Precision),
		Favorable: d.Favorable,
		Window:    windowLabel(s.opts.Window),
		Trend:     d.Trend,
		TrendOK:   d.TrendOK,
		Precision: s.opts.Precision,
	})

	s.logger.Info().
		Str("spread", d.Spread).
		Str("previous", d.Previous).
		Bool("favorable", d.Favorable).
		Msg("new spread detected, sending message")
	d.Delivered = s.deliver(ctx, d.Message)

	// the last signal reflects the decision, not delivery
	if err := s.signals.Save(ctx, d.Spread); err != nil {
		s.logger.Error().Err(err).Str("spread", d.Spread).Msg("failed to persist last signal")
		s.metrics.ObservePersistenceError("signal_save")
	}

	s.metrics.ObserveRun(metrics.OutcomeNotified, now)
	return d
}

func (s *Service) appendHistory(ctx context.Context, obs storage.Observation) bool {
	appended, err := s.history.Append(ctx, obs)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save rates to history")
		s.metrics.ObservePersistenceError("history_append")
		return false
	}
	if !appended {
		s.logger.Info().Msg("rates equal the last history entry, not saving")
		return false
	}
	s.logger.Info().
		Str("sell", obs.SellRate.String()).
		Str("buy", obs.BuyRate.String()).
		Msg("rates saved to history")
	return true
}

func (s *Service) loadWindow(ctx context.Context, now time.Time) []storage.Observation {
	window, err := s.history.LoadWindow(ctx, now, s.opts.Window)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load history, continuing with empty window")
		s.metrics.ObservePersistenceError("history_load")
		return nil
	}
	return window
}

func (s *Service) loadSignal(ctx context.Context) (string, bool) {
	value, ok, err := s.signals.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load last signal, treating as absent")
		s.metrics.ObservePersistenceError("signal_load")
		return "", false
	}
	return value, ok
}

func (s *Service) deliver(ctx context.Context, message string) bool {
	if s.notifier == nil {
		s.logger.Warn().Msg("no notifier configured, message dropped")
		return false
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		s.logger.Error().Err(err).Msg("failed to deliver message")
		s.metrics.ObserveNotification(false)
		return false
	}
	s.metrics.ObserveNotification(true)
	return true
}
