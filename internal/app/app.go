package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-alerts/internal/alerting"
	"spread-alerts/internal/config"
	"spread-alerts/internal/fetcher"
	"spread-alerts/internal/metrics"
	"spread-alerts/internal/scheduler"
	"spread-alerts/internal/service"
	"spread-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.RateSource {
	return fetcher.NewMonobank(fetcher.MonobankOptions{
		BaseURL:          a.Config.Source.BaseURL,
		CurrencyCode:     a.Config.Source.CurrencyCode,
		BaseCurrencyCode: a.Config.Source.BaseCurrencyCode,
		Timeout:          a.Config.Source.RequestTimeout,
		UserAgent:        a.Config.Source.UserAgent,
		MinInterval:      a.Config.Source.MinInterval,
	}, a.Logger)
}

// newNotifier returns nil when alerting is disabled. Without Telegram
// credentials alerts go to the log.
func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(alerting.TelegramOptions{
			BotToken:  cfg.BotToken,
			ChatID:    cfg.ChatID,
			BaseURL:   cfg.APIBase,
			ParseMode: cfg.ParseMode,
			Timeout:   cfg.Timeout,
		}, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

// stores bundles the configured persistence backends.
type stores struct {
	history storage.HistoryStore
	signals storage.SignalStore
	// alerts is set only when the signal backend keeps an alert log.
	alerts  storage.AlertStore
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	tracker := a.Config.Tracker
	result := &stores{}

	var pg *storage.Store
	if a.Config.UsesPostgres() {
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		pg = storage.NewStore(pool, a.Config.Source.CurrencyCode)
		result.closers = append(result.closers, pg.Close)

		if err := pg.EnsureSchema(ctx); err != nil {
			result.Close()
			return nil, err
		}
	}

	switch tracker.HistoryBackend {
	case config.BackendPostgres:
		result.history = pg
	default:
		result.history = storage.NewFileHistory(tracker.HistoryPath, tracker.LockTimeout)
	}

	switch tracker.SignalBackend {
	case config.BackendPostgres:
		result.signals = pg
		result.alerts = pg
	case config.BackendRedis:
		client := storage.NewRedisClient(a.Config.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			result.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		result.closers = append(result.closers, func() { _ = client.Close() })
		result.signals = storage.NewRedisSignalStore(client, a.Config.Redis.KeyPrefix, a.Config.Source.CurrencyCode)
	default:
		result.signals = storage.NewFileSignal(tracker.LastSignalPath)
	}

	a.Logger.Debug().
		Str("history_backend", tracker.HistoryBackend).
		Str("signal_backend", tracker.SignalBackend).
		Msg("stores opened")
	return result, nil
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		CurrencyID:         a.Config.Source.CurrencyCode,
		Window:             a.Config.Tracker.Window,
		FavorableThreshold: decimal.NewFromFloat(a.Config.Tracker.FavorableThreshold),
		Precision:          a.Config.Tracker.Precision,
		AdvisoryLockKey:    a.Config.Scheduler.AdvisoryLockKey,
		MetricsTextfile:    a.Config.Metrics.TextfilePath,
	}
}

// RunOnce performs a single fetch-and-evaluate run. A missing observation
// is logged and is not an error.
func (a *App) RunOnce(ctx context.Context) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := service.New(a.serviceOptions(), service.Dependencies{
		Source:   a.newSource(),
		History:  st.history,
		Signals:  st.signals,
		Notifier: a.newNotifier(),
		Metrics:  metrics.NewCollector(),
	}, a.Logger)

	decision, err := svc.RunOnce(ctx)
	if errors.Is(err, service.ErrSourceUnavailable) {
		a.Logger.Warn().Err(err).Msg("no rates this run")
		return nil
	}
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("spread", decision.Spread).
		Bool("notified", decision.Notify).
		Bool("skipped", decision.Skipped).
		Msg("run finished")
	return nil
}

// Watch executes the long-running monitoring service.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := service.New(a.serviceOptions(), service.Dependencies{
		Scheduler: sched,
		Source:    a.newSource(),
		History:   st.history,
		Signals:   st.signals,
		Notifier:  a.newNotifier(),
		Metrics:   metrics.NewCollector(),
	}, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ImportOptions configure a legacy history import.
type ImportOptions struct {
	// Source is a history CSV in the tracker file format.
	Source string
	From   time.Time
	To     time.Time
	DryRun bool
}
