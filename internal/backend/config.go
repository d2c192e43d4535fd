package backend

import (
	"fmt"
	"strings"

	"expenses/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		BoltPath:     appConfig.BoltPath,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		RatesSource:        appConfig.RatesSource,
		ExchangeRateAPIKey: appConfig.ExchangeRateAPIKey,
		ExchangeRateAPIURL: appConfig.ExchangeRateAPIURL,
		RatesTimeout:       appConfig.RatesTimeout,
		RatesCache:         appConfig.RatesCache,
		RatesCacheTTL:      appConfig.RatesCacheTTL,
		RedisURL:           appConfig.RedisURL,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (one of %s)", c.Type, strings.Join(GetBackendTypeStrings(), ", "))
	}

	switch c.Type {
	case BoltBackend:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt database path is required for bolt backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
		// Nothing to configure
	}

	switch c.RatesSource {
	case "", RatesStatic:
	case RatesAPI:
		if c.ExchangeRateAPIKey == "" {
			return fmt.Errorf("exchange rate API key is required for api rates source")
		}
	default:
		return fmt.Errorf("invalid rates source: %s", c.RatesSource)
	}

	switch c.RatesCache {
	case "", CacheNone, CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for redis rates cache")
		}
	default:
		return fmt.Errorf("invalid rates cache: %s", c.RatesCache)
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, BoltBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}
