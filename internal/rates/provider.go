// Package rates fetches exchange rate snapshots and keeps the current one
// fresh in the background.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expenses/internal/core"
)

// ErrRateFetch wraps every failure to obtain a rate snapshot.
var ErrRateFetch = errors.New("rate fetch failed")

// Provider returns a snapshot of rates relative to a pivot currency.
type Provider interface {
	GetRates(ctx context.Context, pivot string) (core.RateSnapshot, error)
	Name() string
}

// staticRates are USD based reference rates.
var staticRates = map[string]float64{
	"USD": 1,
	"EUR": 0.85,
	"GBP": 0.73,
	"JPY": 110,
	"AUD": 1.35,
	"CAD": 1.25,
	"CNY": 6.45,
	"INR": 73.5,
}

// StaticProvider serves a fixed rate table. It is used offline and in tests.
type StaticProvider struct {
	base  string
	rates map[string]float64
	now   func() time.Time
}

// NewStaticProvider returns a provider over the built-in USD table.
func NewStaticProvider() *StaticProvider {
	return NewStaticProviderWithRates("USD", staticRates)
}

// NewStaticProviderWithRates returns a provider over rates expressed against base.
func NewStaticProviderWithRates(base string, rates map[string]float64) *StaticProvider {
	cp := make(map[string]float64, len(rates)+1)
	for k, v := range rates {
		cp[k] = v
	}
	cp[base] = 1
	return &StaticProvider{base: base, rates: cp, now: time.Now}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return "static" }

// GetRates rebases the table onto pivot.
func (p *StaticProvider) GetRates(ctx context.Context, pivot string) (core.RateSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.RateSnapshot{}, fmt.Errorf("%w: %v", ErrRateFetch, err)
	}
	pr, ok := p.rates[pivot]
	if !ok || pr <= 0 {
		return core.RateSnapshot{}, fmt.Errorf("%w: no static rate for %s", ErrRateFetch, pivot)
	}
	out := make(map[string]float64, len(p.rates))
	for code, r := range p.rates {
		out[code] = r / pr
	}
	out[pivot] = 1
	return core.NewRateSnapshot(pivot, out, p.Name(), p.now()), nil
}
