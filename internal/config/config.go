package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"expenses/internal/core"
	applog "expenses/internal/log"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "EXPENSES"

type Config struct {
	// Storage
	DataBackend  string `envconfig:"DATA_BACKEND" default:"bolt"`
	BoltPath     string `envconfig:"BOLT_PATH" default:"./data/expenses.bolt"`
	SQLiteDBPath string `envconfig:"SQLITE_DB_PATH" default:"./data/expenses.db"`

	// Report defaults for a fresh session
	BaseCurrency string `envconfig:"BASE_CURRENCY" default:"USD"`
	ReportName   string `envconfig:"REPORT_NAME" default:"Weekly Expense Report"`

	// Exchange rates
	RatesSource          string        `envconfig:"RATES_SOURCE" default:"static"`
	ExchangeRateAPIKey   string        `envconfig:"EXCHANGERATE_API_KEY"`
	ExchangeRateAPIURL   string        `envconfig:"EXCHANGERATE_API_URL" default:"https://v6.exchangerate-api.com/v6"`
	RatesTimeout         time.Duration `envconfig:"RATES_TIMEOUT" default:"10s"`
	RatesRefreshInterval time.Duration `envconfig:"RATES_REFRESH_INTERVAL" default:"5m"`
	RatesStrict          bool          `envconfig:"RATES_STRICT" default:"false"`
	RatesCache           string        `envconfig:"RATES_CACHE" default:"memory"`
	RatesCacheTTL        time.Duration `envconfig:"RATES_CACHE_TTL" default:"1h"`
	RedisURL             string        `envconfig:"REDIS_URL"`

	// AMQP (optional)
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"expenses"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"report_saved"`

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string `envconfig:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `envconfig:"GOOGLE_SHEET_NAME" default:"Expenses"`
	GoogleServiceAccountFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleServiceAccountJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file (the given paths, or ./.env) and then
// the EXPENSES_* environment. Real environment variables win over the file.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency))
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{"memory", "bolt", "sqlite"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "bolt" && c.BoltPath == "" {
		errors = append(errors, "bolt database path cannot be empty when using bolt backend")
	}
	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	if !core.IsSupportedCurrency(c.BaseCurrency) {
		errors = append(errors, fmt.Sprintf("unsupported base currency '%s': must be one of %v", c.BaseCurrency, core.CurrencyCodes()))
	}

	validSources := []string{"static", "api"}
	if !contains(validSources, c.RatesSource) {
		errors = append(errors, fmt.Sprintf("invalid rates source '%s': must be one of %v", c.RatesSource, validSources))
	}
	if c.RatesSource == "api" {
		if c.ExchangeRateAPIKey == "" {
			errors = append(errors, "exchange rate API key is required when rates source is api")
		}
		if u, err := url.Parse(c.ExchangeRateAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid exchange rate API URL '%s': must be http or https", c.ExchangeRateAPIURL))
		}
	}
	if c.RatesTimeout < 100*time.Millisecond || c.RatesTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates timeout %v: must be between 100ms and 1m", c.RatesTimeout))
	}
	if c.RatesRefreshInterval != 0 && (c.RatesRefreshInterval < time.Second || c.RatesRefreshInterval > 24*time.Hour) {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be 0 (disabled) or between 1 second and 24 hours", c.RatesRefreshInterval))
	}

	validCaches := []string{"none", "memory", "redis"}
	if !contains(validCaches, c.RatesCache) {
		errors = append(errors, fmt.Sprintf("invalid rates cache '%s': must be one of %v", c.RatesCache, validCaches))
	}
	if c.RatesCache != "none" && c.RatesCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates cache TTL %v: must be positive", c.RatesCacheTTL))
	}
	if c.RatesCache == "redis" {
		if c.RedisURL == "" {
			errors = append(errors, "Redis URL is required when rates cache is redis")
		} else if u, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if u.Scheme != "redis" && u.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", u.Scheme))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Google Sheets export is enabled by a spreadsheet ID
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels[:4]))
	}
	validFormats := []string{applog.FormatText, applog.FormatJSON, applog.FormatPretty}
	if !contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// LogConfig maps the logging settings onto a logger configuration.
func (c *Config) LogConfig() applog.Config {
	lc := applog.DefaultConfig()
	lc.Level = applog.ParseLevel(c.LogLevel)
	lc.Format = c.LogFormat
	return lc
}

// SheetsEnabled reports whether Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Summary returns loggable key/value pairs with secrets masked.
func (c *Config) Summary() []any {
	return []any{
		"data_backend", c.DataBackend,
		"base_currency", c.BaseCurrency,
		"rates_source", c.RatesSource,
		"rates_cache", c.RatesCache,
		"exchange_api_key", MaskSecret(c.ExchangeRateAPIKey),
		"amqp_enabled", c.AMQPURL != "",
		"sheets_enabled", c.SheetsEnabled(),
	}
}

// MaskSecret keeps the first and last two characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
