package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-alerts/internal/alerting"
	"spread-alerts/internal/fetcher"
	"spread-alerts/internal/metrics"
	"spread-alerts/internal/scheduler"
	"spread-alerts/internal/storage"
)

// ErrSourceUnavailable ends a run before any state is touched.
var ErrSourceUnavailable = errors.New("no observation available")

// Options is the explicit configuration of the decision engine.
type Options struct {
	CurrencyID         int
	Window             time.Duration
	FavorableThreshold decimal.Decimal
	// Precision is the number of decimals used for change detection.
	Precision       int32
	AdvisoryLockKey int64
	// MetricsTextfile, when set, receives the collector state after each run.
	MetricsTextfile string
}

// Dependencies are the collaborators a Service is built from. Scheduler,
// Notifier and Metrics may be nil.
type Dependencies struct {
	Scheduler *scheduler.Scheduler
	Source    fetcher.RateSource
	History   storage.HistoryStore
	Signals   storage.SignalStore
	Notifier  alerting.Notifier
	Metrics   *metrics.Collector
}

// Service orchestrates fetching, history tracking and alert decisions.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.RateSource
	history   storage.HistoryStore
	signals   storage.SignalStore
	notifier  alerting.Notifier
	metrics   *metrics.Collector
	logger    zerolog.Logger

	opts   Options
	locker storage.AdvisoryLocker
	now    func() time.Time
}

// New constructs the service.
func New(opts Options, deps Dependencies, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.History.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: deps.Scheduler,
		source:    deps.Source,
		history:   deps.History,
		signals:   deps.Signals,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger.With().Str("component", "service").Int("currency", opts.CurrencyID).Logger(),
		opts:      opts,
		locker:    locker,
		now:       time.Now,
	}
}

// Run begins the scheduled evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket performs one run for a scheduler tick. A missing
// observation is already logged and does not fail the tick.
func (s *Service) ProcessBucket(ctx context.Context, _ time.Time) error {
	_, err := s.RunOnce(ctx)
	if errors.Is(err, ErrSourceUnavailable) {
		return nil
	}
	return err
}

// RunOnce fetches one quote and evaluates it. It returns
// ErrSourceUnavailable, without touching history or the last signal, when
// no valid quote could be obtained.
func (s *Service) RunOnce(ctx context.Context) (Decision, error) {
	defer s.flushMetrics()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return Decision{}, err
	}
	if !proceed {
		s.logger.Info().Msg("skip run because advisory lock held elsewhere")
		s.metrics.ObserveRun(metrics.OutcomeSkipped, s.now())
		return Decision{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	obs, err := s.observe(ctx)
	if err != nil {
		s.metrics.ObserveRun(metrics.OutcomeSourceUnavailable, s.now())
		return Decision{}, err
	}

	return s.Evaluate(ctx, obs), nil
}

func (s *Service) observe(ctx context.Context) (storage.Observation, error) {
	if s.source == nil {
		return storage.Observation{}, fmt.Errorf("rate source not configured: %w", ErrSourceUnavailable)
	}

	quote, err := s.source.FetchRate(ctx)
	if err != nil {
		event := s.logger.Error()
		if errors.Is(err, fetcher.ErrRateLimited) {
			event = s.logger.Warn()
		}
		event.Err(err).Msg("unable to fetch currency data")
		return storage.Observation{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	if !quote.SellRate.IsPositive() || !quote.BuyRate.IsPositive() {
		s.logger.Error().
			Str("sell", quote.SellRate.String()).
			Str("buy", quote.BuyRate.String()).
			Msg("quote is missing rate data")
		return storage.Observation{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, fetcher.ErrMissingRates)
	}

	return storage.Observation{
		Timestamp: s.now(),
		SellRate:  quote.SellRate,
		BuyRate:   quote.BuyRate,
	}, nil
}

func (s *Service) flushMetrics() {
	if err := s.metrics.WriteTextfile(s.opts.MetricsTextfile); err != nil {
		s.logger.Warn().Err(err).Str("path", s.opts.MetricsTextfile).Msg("failed to write metrics")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
