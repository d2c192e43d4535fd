// Package conversion converts amounts between currencies through the pivot
// of a rate snapshot and aggregates expense records into report totals.
//
// The package level functions fail soft: a conversion that needs a rate the
// snapshot does not carry yields 0. Engine adds an opt-in strict mode that
// reports ErrRateUnavailable instead, and Lookup exposes the distinction
// directly.
package conversion

import (
	"errors"
	"fmt"
	"math"

	"expenses/internal/core"
)

// ErrRateUnavailable is returned in strict mode when a needed rate is missing.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Mode selects how missing rates are reported.
type Mode int

const (
	// FailSoft converts with a missing rate to 0.
	FailSoft Mode = iota
	// Strict returns ErrRateUnavailable for a missing rate.
	Strict
)

// Lookup converts amount from one currency to another through the snapshot pivot.
// ok is false only when a rate needed for the conversion is missing.
func Lookup(amount float64, from, to string, s core.RateSnapshot) (float64, bool) {
	if from == to {
		return amount, true
	}
	if !validAmount(amount) {
		return 0, true
	}
	fromRate, ok := usableRate(s, from)
	if !ok {
		return 0, false
	}
	toRate, ok := usableRate(s, to)
	if !ok {
		return 0, false
	}
	return amount / fromRate * toRate, true
}

// Convert is Lookup with missing rates converted to 0.
func Convert(amount float64, from, to string, s core.RateSnapshot) float64 {
	v, _ := Lookup(amount, from, to, s)
	return v
}

// ConvertRecord returns the record amount expressed in target.
func ConvertRecord(r core.Record, target string, s core.RateSnapshot) float64 {
	return Convert(r.AmountValue(), r.Currency, target, s)
}

// AggregateTotal sums every record converted to target, in slice order.
// Intermediate values are not rounded.
func AggregateTotal(records []core.Record, target string, s core.RateSnapshot) float64 {
	var total float64
	for _, r := range records {
		total += ConvertRecord(r, target, s)
	}
	return total
}

// TotalsByCategory aggregates converted amounts per category, in first-seen order.
// Records without a category are grouped under the empty category.
func TotalsByCategory(records []core.Record, target string, s core.RateSnapshot) []core.CategoryAmount {
	var out []core.CategoryAmount
	idx := make(map[core.Category]int)
	for _, r := range records {
		v := ConvertRecord(r, target, s)
		i, ok := idx[r.Category]
		if !ok {
			idx[r.Category] = len(out)
			out = append(out, core.CategoryAmount{Category: r.Category, Amount: v})
			continue
		}
		out[i].Amount += v
	}
	return out
}

// RoundForDisplay renders a converted amount with two decimals.
func RoundForDisplay(v float64) string {
	return core.FormatAmount(v)
}

// Engine wraps the conversion functions with a configurable missing-rate policy.
type Engine struct {
	mode Mode
}

// NewEngine returns an engine using mode.
func NewEngine(mode Mode) *Engine {
	return &Engine{mode: mode}
}

// Mode returns the engine's missing-rate policy.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Convert converts amount, returning ErrRateUnavailable in strict mode when a rate is missing.
func (e *Engine) Convert(amount float64, from, to string, s core.RateSnapshot) (float64, error) {
	v, ok := Lookup(amount, from, to, s)
	if !ok && e.mode == Strict {
		return 0, fmt.Errorf("%w: %s to %s", ErrRateUnavailable, from, to)
	}
	return v, nil
}

// ConvertRecord converts a single record under the engine's policy.
func (e *Engine) ConvertRecord(r core.Record, target string, s core.RateSnapshot) (float64, error) {
	return e.Convert(r.AmountValue(), r.Currency, target, s)
}

// AggregateTotal sums records under the engine's policy. In strict mode the
// first missing rate aborts the aggregation.
func (e *Engine) AggregateTotal(records []core.Record, target string, s core.RateSnapshot) (float64, error) {
	var total float64
	for _, r := range records {
		v, err := e.ConvertRecord(r, target, s)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", r.ID, err)
		}
		total += v
	}
	return total, nil
}

// validAmount rejects zero, negative and non finite amounts.
func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func usableRate(s core.RateSnapshot, code string) (float64, bool) {
	r, ok := s.Rate(code)
	if !ok || !(r > 0) || math.IsInf(r, 1) {
		return 0, false
	}
	return r, true
}
