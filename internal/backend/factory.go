package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	applog "expenses/internal/log"
	"expenses/internal/rates"
	gsheet "expenses/internal/sheets/google"
	"expenses/internal/sheets/memory"
	"expenses/internal/storage"
)

const (
	rateCacheSize        = 32
	rateCachePrefix      = "expenses:rates:"
	cacheCleanupInterval = time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// Create builds the gateway, rate provider and cache, and the optional
// notifier and exporter. On error everything already opened is closed.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Components, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []CleanupFunc
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	gateway, err := f.createGateway(config)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, gateway.Close)

	rateCache, closeCache := f.createRateCache(ctx, config)
	if closeCache != nil {
		cleanups = append(cleanups, closeCache)
	}

	c := &Components{
		Gateway:   gateway,
		Provider:  f.createProvider(config),
		RateCache: rateCache,
	}

	// Initialize AMQP client (optional)
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications", applog.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			c.Notifier = client
			cleanups = append(cleanups, client.Close)
		}
	}

	switch {
	case config.SheetsDryRun:
		c.Exporter = memory.New()
	case config.GoogleSpreadsheetID != "":
		exporter, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
			Logger:          f.logger,
		})
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize Google Sheets client, sheets export disabled", applog.FieldError, err)
		} else {
			c.Exporter = exporter
		}
	}

	c.Cleanup = cleanup

	f.logger.InfoContext(ctx, "Initialized backend",
		applog.FieldBackend, config.Type,
		"rates_source", c.Provider.Name(),
		"rates_cache", cacheKind(config.RatesCache),
		"amqp_enabled", c.Notifier != nil,
		"sheets_enabled", c.Exporter != nil)

	return c, nil
}

func (f *DefaultFactory) createGateway(config Config) (storage.Gateway, error) {
	switch config.Type {
	case BoltBackend:
		g, err := storage.NewBoltGateway(config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bolt storage: %w", err)
		}
		return g, nil
	case SQLiteBackend:
		g, err := storage.NewSQLiteGateway(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return g, nil
	case MemoryBackend:
		return storage.NewMemoryGateway(storage.State{}), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createProvider(config Config) rates.Provider {
	if config.RatesSource == RatesAPI {
		return rates.NewExchangeRateAPIProvider(config.ExchangeRateAPIKey, config.ExchangeRateAPIURL, config.RatesTimeout, f.logger)
	}
	return rates.NewStaticProvider()
}

// createRateCache returns the snapshot cache and its cleanup. An unreachable
// Redis falls back to the in-process cache.
func (f *DefaultFactory) createRateCache(ctx context.Context, config Config) (cache.Cache[core.RateSnapshot], CleanupFunc) {
	ttl := config.RatesCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	switch cacheKind(config.RatesCache) {
	case CacheNone:
		return nil, nil
	case CacheRedis:
		rc, err := cache.NewRedisCache[core.RateSnapshot](config.RedisURL, rateCachePrefix, ttl, f.logger)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = rc.Ping(pingCtx)
			cancel()
			if err == nil {
				return rc, rc.Close
			}
			_ = rc.Close()
		}
		f.logger.WarnContext(ctx, "Redis rate cache unavailable, using in-process cache", applog.FieldError, err)
	}

	lru := cache.NewLRUCache[core.RateSnapshot](rateCacheSize, ttl)
	manager := cache.NewManager(f.logger)
	manager.Register(lru)
	manager.StartCleanup(cacheCleanupInterval)
	return lru, func() error {
		manager.Stop()
		return nil
	}
}

func cacheKind(kind string) string {
	if kind == "" {
		return CacheMemory
	}
	return kind
}
