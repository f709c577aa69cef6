package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/Amenzel91/catalyst-bot-sub003/internal/blob/s3"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/broker"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/cache/redis"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/calendar"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/config"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/marketdata"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/notify"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	PriceCache domain.PriceCache
	EventBus   domain.EventBus

	Prices   domain.PriceProvider
	Broker   domain.Broker
	Calendar domain.MarketCalendar

	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier
}

// needsPostgres reports whether the mode requires durable storage. Backtests
// and sweeps keep their ledger in memory.
func needsPostgres(mode string) bool {
	switch mode {
	case "monitor", "report":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependency implementations for the configured
// mode and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis (quote cache and position event bus) ---
	if needsPostgres(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- Market data and execution (monitor mode only) ---
	if mode == "monitor" {
		upstream := marketdata.NewHTTPProvider(cfg.MarketData.BaseURL, cfg.MarketData.APIKey)
		deps.Prices = marketdata.NewCachedProvider(upstream, deps.PriceCache, cfg.MarketData.CacheMaxAge.Duration, logger)
		deps.Broker = broker.NewPaper(deps.Prices, logger)
		deps.Calendar = calendar.NewInLocation(cfg.Monitor.CalendarTimezone, cfg.Monitor.Holidays)
	}

	// --- S3 blob storage (optional run archival) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.PositionStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
