package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spread-alerts/internal/logging"
)

// Storage backend identifiers.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes the public exchange-rate endpoint.
type SourceConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	CurrencyCode     int           `mapstructure:"currency_code"`
	BaseCurrencyCode int           `mapstructure:"base_currency_code"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	MinInterval      time.Duration `mapstructure:"min_interval"`
}

// TrackerConfig governs history windowing, change detection and persistence.
type TrackerConfig struct {
	Window             time.Duration `mapstructure:"window"`
	FavorableThreshold float64       `mapstructure:"favorable_threshold"`
	Precision          int32         `mapstructure:"precision"`
	HistoryBackend     string        `mapstructure:"history_backend"`
	SignalBackend      string        `mapstructure:"signal_backend"`
	HistoryPath        string        `mapstructure:"history_path"`
	LastSignalPath     string        `mapstructure:"last_signal_path"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig locates the key-value store used for the last signal.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs the cadence of the watch loop.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BotToken  string        `mapstructure:"bot_token"`
	ChatID    string        `mapstructure:"chat_id"`
	APIBase   string        `mapstructure:"api_base"`
	ParseMode string        `mapstructure:"parse_mode"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the node-exporter textfile output.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from an optional .env file, config file,
// environment, and defaults.
func Load(path, envFile string) (*Config, error) {
	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SPREADWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Legacy deployments only set the bot token and group id.
	telegram := &cfg.Alerting.Telegram
	if !v.IsSet("alerting.telegram.enabled") && telegram.BotToken != "" && telegram.ChatID != "" {
		telegram.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotenv populates the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// bindLegacyEnv keeps the variable names used by existing deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"alerting.telegram.bot_token": {"SPREADWATCHER_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"alerting.telegram.chat_id":   {"SPREADWATCHER_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_GROUP_ID"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spreadwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("source.base_url", "https://api.monobank.ua")
	v.SetDefault("source.currency_code", 840)
	v.SetDefault("source.base_currency_code", 980)
	v.SetDefault("source.request_timeout", "5s")
	v.SetDefault("source.user_agent", "spreadwatcher/1.0")
	v.SetDefault("source.min_interval", "60s")

	v.SetDefault("tracker.window", "720h")
	v.SetDefault("tracker.favorable_threshold", 0.40)
	v.SetDefault("tracker.precision", 2)
	v.SetDefault("tracker.history_backend", BackendFile)
	v.SetDefault("tracker.signal_backend", BackendFile)
	v.SetDefault("tracker.history_path", "currency_history.csv")
	v.SetDefault("tracker.last_signal_path", "mono_currency.txt")
	v.SetDefault("tracker.lock_timeout", "2s")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "spreadwatcher:")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d6f6e6f))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.parse_mode", "Markdown")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Source.CurrencyCode <= 0 {
		return fmt.Errorf("source.currency_code must be greater than zero")
	}
	if c.Tracker.Window <= 0 {
		return fmt.Errorf("tracker.window must be greater than zero")
	}
	if c.Tracker.FavorableThreshold < 0 {
		return fmt.Errorf("tracker.favorable_threshold cannot be negative")
	}
	if c.Tracker.Precision < 0 {
		return fmt.Errorf("tracker.precision cannot be negative")
	}
	switch c.Tracker.HistoryBackend {
	case BackendFile:
		if c.Tracker.HistoryPath == "" {
			return fmt.Errorf("tracker.history_path is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres history backend")
		}
	default:
		return fmt.Errorf("tracker.history_backend %q is not supported", c.Tracker.HistoryBackend)
	}
	switch c.Tracker.SignalBackend {
	case BackendFile:
		if c.Tracker.LastSignalPath == "" {
			return fmt.Errorf("tracker.last_signal_path is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres signal backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis signal backend")
		}
	default:
		return fmt.Errorf("tracker.signal_backend %q is not supported", c.Tracker.SignalBackend)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// UsesPostgres reports whether any tracker backend needs a database pool.
func (c *Config) UsesPostgres() bool {
	return c.Tracker.HistoryBackend == BackendPostgres || c.Tracker.SignalBackend == BackendPostgres
}
