package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CATALYST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CATALYST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CATALYST_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CATALYST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CATALYST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CATALYST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CATALYST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CATALYST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CATALYST_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CATALYST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CATALYST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CATALYST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CATALYST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CATALYST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CATALYST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CATALYST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CATALYST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CATALYST_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CATALYST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CATALYST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CATALYST_S3_REGION")
	setStr(&cfg.S3.Bucket, "CATALYST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CATALYST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CATALYST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CATALYST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CATALYST_S3_FORCE_PATH_STYLE")

	// ── Market data ──
	setStr(&cfg.MarketData.BaseURL, "CATALYST_MARKETDATA_BASE_URL")
	setStr(&cfg.MarketData.APIKey, "CATALYST_MARKETDATA_API_KEY")
	setDuration(&cfg.MarketData.CacheMaxAge, "CATALYST_MARKETDATA_CACHE_MAX_AGE")

	// ── Broker ──
	setStr(&cfg.Broker.Kind, "CATALYST_BROKER_KIND")
	setFloat64(&cfg.Broker.Commission, "CATALYST_BROKER_COMMISSION")

	// ── Exit rules ──
	setFloat64(&cfg.Exit.StopLossPct, "CATALYST_EXIT_STOP_LOSS_PCT")
	setFloat64(&cfg.Exit.TakeProfitPct, "CATALYST_EXIT_TAKE_PROFIT_PCT")
	setDuration(&cfg.Exit.MaxHold, "CATALYST_EXIT_MAX_HOLD")

	// ── Risk ──
	setInt(&cfg.Risk.MaxOpenPositions, "CATALYST_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.MaxNotional, "CATALYST_RISK_MAX_NOTIONAL")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "CATALYST_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.CallTimeout, "CATALYST_MONITOR_CALL_TIMEOUT")
	setInt(&cfg.Monitor.MaxRejections, "CATALYST_MONITOR_MAX_REJECTIONS")
	setStr(&cfg.Monitor.CalendarTimezone, "CATALYST_MONITOR_CALENDAR_TIMEZONE")
	setStringSlice(&cfg.Monitor.Holidays, "CATALYST_MONITOR_HOLIDAYS")

	// ── Backtest ──
	setStr(&cfg.Backtest.SignalsPath, "CATALYST_BACKTEST_SIGNALS_PATH")
	setStr(&cfg.Backtest.BarsPath, "CATALYST_BACKTEST_BARS_PATH")
	setFloat64(&cfg.Backtest.InitialCash, "CATALYST_BACKTEST_INITIAL_CASH")
	setFloat64(&cfg.Backtest.PositionSizePct, "CATALYST_BACKTEST_POSITION_SIZE_PCT")
	setFloat64(&cfg.Backtest.MaxDailyVolumePct, "CATALYST_BACKTEST_MAX_DAILY_VOLUME_PCT")
	setFloat64(&cfg.Backtest.Commission, "CATALYST_BACKTEST_COMMISSION")
	setDuration(&cfg.Backtest.TickResolution, "CATALYST_BACKTEST_TICK_RESOLUTION")
	setFloat64(&cfg.Backtest.MinScore, "CATALYST_BACKTEST_MIN_SCORE")
	setFloat64(&cfg.Backtest.MinSentiment, "CATALYST_BACKTEST_MIN_SENTIMENT")
	setStringSlice(&cfg.Backtest.CatalystTypes, "CATALYST_BACKTEST_CATALYST_TYPES")
	setBool(&cfg.Backtest.FillAtThreshold, "CATALYST_BACKTEST_FILL_AT_THRESHOLD")

	// ── Optimizer ──
	setInt(&cfg.Optimizer.Samples, "CATALYST_OPTIMIZER_SAMPLES")
	setInt64(&cfg.Optimizer.Seed, "CATALYST_OPTIMIZER_SEED")
	setInt(&cfg.Optimizer.Workers, "CATALYST_OPTIMIZER_WORKERS")
	setStr(&cfg.Optimizer.Objective, "CATALYST_OPTIMIZER_OBJECTIVE")
	setFloat64(&cfg.Optimizer.StopLossMin, "CATALYST_OPTIMIZER_STOP_LOSS_MIN")
	setFloat64(&cfg.Optimizer.StopLossMax, "CATALYST_OPTIMIZER_STOP_LOSS_MAX")
	setFloat64(&cfg.Optimizer.TakeProfitMin, "CATALYST_OPTIMIZER_TAKE_PROFIT_MIN")
	setFloat64(&cfg.Optimizer.TakeProfitMax, "CATALYST_OPTIMIZER_TAKE_PROFIT_MAX")
	setFloat64(&cfg.Optimizer.PositionSizeMin, "CATALYST_OPTIMIZER_POSITION_SIZE_MIN")
	setFloat64(&cfg.Optimizer.PositionSizeMax, "CATALYST_OPTIMIZER_POSITION_SIZE_MAX")
	setFloat64(&cfg.Optimizer.MaxHoldHoursMin, "CATALYST_OPTIMIZER_MAX_HOLD_HOURS_MIN")
	setFloat64(&cfg.Optimizer.MaxHoldHoursMax, "CATALYST_OPTIMIZER_MAX_HOLD_HOURS_MAX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CATALYST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CATALYST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CATALYST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CATALYST_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CATALYST_MODE")
	setStr(&cfg.LogLevel, "CATALYST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
