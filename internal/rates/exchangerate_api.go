package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expenses/internal/core"
	applog "expenses/internal/log"
)

// DefaultAPIURL is the exchangerate-api.com v6 endpoint.
const DefaultAPIURL = "https://v6.exchangerate-api.com/v6"

// ExchangeRateAPIProvider fetches rates from exchangerate-api.com.
type ExchangeRateAPIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *applog.Logger
}

// exchangeRateResponse is the subset of the v6 "latest" response we read.
type exchangeRateResponse struct {
	Result             string             `json:"result"`
	ErrorType          string             `json:"error-type,omitempty"`
	BaseCode           string             `json:"base_code"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
	ConversionRates    map[string]float64 `json:"conversion_rates"`
}

// NewExchangeRateAPIProvider creates a provider. An empty baseURL selects
// DefaultAPIURL; a non-positive timeout selects 10s.
func NewExchangeRateAPIProvider(apiKey, baseURL string, timeout time.Duration, logger *applog.Logger) *ExchangeRateAPIProvider {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExchangeRateAPIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent(applog.ComponentRates),
	}
}

// Name implements Provider.
func (p *ExchangeRateAPIProvider) Name() string { return "exchangerate-api" }

// GetRates fetches all rates for pivot in a single request.
func (p *ExchangeRateAPIProvider) GetRates(ctx context.Context, pivot string) (core.RateSnapshot, error) {
	url := fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, pivot)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.RateSnapshot{}, fmt.Errorf("%w: create request: %v", ErrRateFetch, err)
	}

	p.logger.DebugContext(ctx, "Fetching exchange rates", applog.FieldPivot, pivot)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return core.RateSnapshot{}, fmt.Errorf("%w: %v", ErrRateFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.RateSnapshot{}, fmt.Errorf("%w: API returned status %d: %s", ErrRateFetch, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return core.RateSnapshot{}, fmt.Errorf("%w: decode response: %v", ErrRateFetch, err)
	}
	if apiResp.Result != "success" {
		return core.RateSnapshot{}, fmt.Errorf("%w: API returned result=%s %s", ErrRateFetch, apiResp.Result, apiResp.ErrorType)
	}
	if len(apiResp.ConversionRates) == 0 {
		return core.RateSnapshot{}, fmt.Errorf("%w: empty conversion_rates", ErrRateFetch)
	}

	fetchedAt := time.Now()
	if apiResp.TimeLastUpdateUnix > 0 {
		fetchedAt = time.Unix(apiResp.TimeLastUpdateUnix, 0).UTC()
	}
	return core.NewRateSnapshot(pivot, apiResp.ConversionRates, p.Name(), fetchedAt), nil
}
