// Package config defines the top-level configuration for the catalyst bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CATALYST_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	MarketData MarketDataConfig `toml:"marketdata"`
	Broker     BrokerConfig     `toml:"broker"`
	Exit       ExitConfig       `toml:"exit"`
	Risk       RiskConfig       `toml:"risk"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Optimizer  OptimizerConfig  `toml:"optimizer"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Archival is
// optional; Enabled false skips the S3 client entirely.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketDataConfig holds the quote API endpoint and quote-cache tuning.
type MarketDataConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	CacheMaxAge duration `toml:"cache_max_age"`
}

// BrokerConfig selects the execution backend.
type BrokerConfig struct {
	// Kind is the broker implementation: "paper" fills at the current quote.
	Kind       string  `toml:"kind"`
	Commission float64 `toml:"commission"`
}

// ExitConfig holds the exit-rule thresholds applied to live entries.
type ExitConfig struct {
	StopLossPct   float64  `toml:"stop_loss_pct"`
	TakeProfitPct float64  `toml:"take_profit_pct"`
	MaxHold       duration `toml:"max_hold"`
}

// RiskConfig limits live position exposure.
type RiskConfig struct {
	MaxOpenPositions int     `toml:"max_open_positions"`
	MaxNotional      float64 `toml:"max_notional"`
}

// MonitorConfig tunes the live polling loop.
type MonitorConfig struct {
	Interval      duration `toml:"interval"`
	CallTimeout   duration `toml:"call_timeout"`
	MaxRejections int      `toml:"max_rejections"`
	// CalendarTimezone is the exchange timezone for the trading calendar.
	CalendarTimezone string `toml:"calendar_timezone"`
	// Holidays are full-day market closures, "YYYY-MM-DD".
	Holidays []string `toml:"holidays"`
}

// BacktestConfig parameterizes a simulation run. Signal and bar data come
// from JSON files.
type BacktestConfig struct {
	SignalsPath string `toml:"signals_path"`
	BarsPath    string `toml:"bars_path"`

	InitialCash       float64  `toml:"initial_cash"`
	PositionSizePct   float64  `toml:"position_size_pct"`
	MaxDailyVolumePct float64  `toml:"max_daily_volume_pct"`
	Commission        float64  `toml:"commission"`
	TickResolution    duration `toml:"tick_resolution"`

	MinScore        float64  `toml:"min_score"`
	MinSentiment    float64  `toml:"min_sentiment"`
	CatalystTypes   []string `toml:"catalyst_types"`
	FillAtThreshold bool     `toml:"fill_at_threshold"`
}

// OptimizerConfig parameterizes the Monte Carlo sweep. Range bounds of
// [0, 0] pin a parameter to its backtest-config value.
type OptimizerConfig struct {
	Samples   int    `toml:"samples"`
	Seed      int64  `toml:"seed"`
	Workers   int    `toml:"workers"`
	Objective string `toml:"objective"`

	StopLossMin     float64 `toml:"stop_loss_min"`
	StopLossMax     float64 `toml:"stop_loss_max"`
	TakeProfitMin   float64 `toml:"take_profit_min"`
	TakeProfitMax   float64 `toml:"take_profit_max"`
	PositionSizeMin float64 `toml:"position_size_min"`
	PositionSizeMax float64 `toml:"position_size_max"`
	MaxHoldHoursMin float64 `toml:"max_hold_hours_min"`
	MaxHoldHoursMax float64 `toml:"max_hold_hours_max"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "catalyst",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "catalyst-runs",
			ForcePathStyle: true,
		},
		MarketData: MarketDataConfig{
			CacheMaxAge: duration{30 * time.Second},
		},
		Broker: BrokerConfig{
			Kind:       "paper",
			Commission: 0,
		},
		Exit: ExitConfig{
			StopLossPct:   0.05,
			TakeProfitPct: 0.10,
			MaxHold:       duration{72 * time.Hour},
		},
		Risk: RiskConfig{
			MaxOpenPositions: 5,
			MaxNotional:      10_000,
		},
		Monitor: MonitorConfig{
			Interval:         duration{60 * time.Second},
			CallTimeout:      duration{10 * time.Second},
			MaxRejections:    3,
			CalendarTimezone: "America/New_York",
		},
		Backtest: BacktestConfig{
			InitialCash:     10_000,
			PositionSizePct: 0.10,
			TickResolution:  duration{time.Hour},
			MinScore:        0,
			MinSentiment:    0,
		},
		Optimizer: OptimizerConfig{
			Samples:       100,
			Seed:          1,
			Workers:       4,
			Objective:     "sharpe",
			StopLossMin:   0.05,
			StopLossMax:   0.15,
			TakeProfitMin: 0.10,
			TakeProfitMax: 0.30,
		},
		Notify: NotifyConfig{
			Events: []string{"position_stuck", "storage_failure", "position_closed"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor":  true,
	"backtest": true,
	"optimize": true,
	"report":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validObjectives = map[string]bool{
	"sharpe":    true,
	"return":    true,
	"composite": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, backtest, optimize, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	mode := strings.ToLower(c.Mode)

	// Postgres is the durable store for the live modes.
	if mode == "monitor" || mode == "report" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if mode == "monitor" {
		if c.MarketData.BaseURL == "" {
			errs = append(errs, "marketdata: base_url must not be empty for monitor mode")
		}
		if c.Broker.Kind != "paper" {
			errs = append(errs, fmt.Sprintf("broker: unknown kind %q (valid: paper)", c.Broker.Kind))
		}
		if c.Monitor.Interval.Duration <= 0 {
			errs = append(errs, "monitor: interval must be positive")
		}
		if c.Monitor.CallTimeout.Duration <= 0 {
			errs = append(errs, "monitor: call_timeout must be positive")
		}
		if c.Monitor.MaxRejections < 1 {
			errs = append(errs, "monitor: max_rejections must be >= 1")
		}
		for _, h := range c.Monitor.Holidays {
			if _, err := time.Parse("2006-01-02", h); err != nil {
				errs = append(errs, fmt.Sprintf("monitor: invalid holiday %q (want YYYY-MM-DD)", h))
			}
		}
	}

	if mode == "monitor" || mode == "backtest" || mode == "optimize" {
		if c.Exit.StopLossPct <= 0 || c.Exit.StopLossPct >= 1 {
			errs = append(errs, fmt.Sprintf("exit: stop_loss_pct must be in (0, 1), got %g", c.Exit.StopLossPct))
		}
		if c.Exit.TakeProfitPct <= 0 {
			errs = append(errs, fmt.Sprintf("exit: take_profit_pct must be > 0, got %g", c.Exit.TakeProfitPct))
		}
	}

	if mode == "backtest" || mode == "optimize" {
		if c.Backtest.SignalsPath == "" {
			errs = append(errs, "backtest: signals_path must not be empty")
		}
		if c.Backtest.BarsPath == "" {
			errs = append(errs, "backtest: bars_path must not be empty")
		}
		if c.Backtest.InitialCash <= 0 {
			errs = append(errs, "backtest: initial_cash must be > 0")
		}
		if c.Backtest.PositionSizePct <= 0 || c.Backtest.PositionSizePct > 1 {
			errs = append(errs, fmt.Sprintf("backtest: position_size_pct must be in (0, 1], got %g", c.Backtest.PositionSizePct))
		}
		if c.Backtest.TickResolution.Duration <= 0 {
			errs = append(errs, "backtest: tick_resolution must be positive")
		}
	}

	if mode == "optimize" {
		if c.Optimizer.Samples < 1 {
			errs = append(errs, "optimizer: samples must be >= 1")
		}
		if !validObjectives[strings.ToLower(c.Optimizer.Objective)] {
			errs = append(errs, fmt.Sprintf("optimizer: unknown objective %q (valid: sharpe, return, composite)", c.Optimizer.Objective))
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if (c.Notify.TelegramToken != "") != (c.Notify.TelegramChatID != "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
