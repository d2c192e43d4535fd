package backend

import (
	"context"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	"expenses/internal/rates"
	"expenses/internal/sheets"
	"expenses/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Components holds everything a session needs from the outside world.
// Notifier and Exporter are nil when their integration is disabled;
// RateCache is nil when caching is off.
type Components struct {
	Gateway   storage.Gateway
	Provider  rates.Provider
	RateCache cache.Cache[core.RateSnapshot]
	Notifier  *amqp.Client
	Exporter  sheets.ReportExporter
	Cleanup   CleanupFunc
}

// Factory creates components based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Components, error)
}

// Config holds configuration for component creation
type Config struct {
	Type BackendType

	// Storage
	BoltPath     string
	SQLiteDBPath string

	// Rates
	RatesSource        string
	ExchangeRateAPIKey string
	ExchangeRateAPIURL string
	RatesTimeout       time.Duration
	RatesCache         string
	RatesCacheTTL      time.Duration
	RedisURL           string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	// SheetsDryRun keeps exported reports in memory instead.
	SheetsDryRun bool
}

// BackendType represents the type of storage backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	BoltBackend   BackendType = "bolt"
	SQLiteBackend BackendType = "sqlite"
)

// Rate sources and cache kinds.
const (
	RatesStatic = "static"
	RatesAPI    = "api"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, BoltBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
