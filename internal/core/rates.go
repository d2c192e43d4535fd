package core

import (
	"encoding/json"
	"time"
)

// RateSnapshot is an immutable set of exchange rates, all expressed
// relative to Pivot (one unit of Pivot buys Rate(code) units of code).
type RateSnapshot struct {
	Pivot     string
	Source    string
	FetchedAt time.Time
	rates     map[string]float64
}

// NewRateSnapshot copies rates into a new snapshot.
func NewRateSnapshot(pivot string, rates map[string]float64, source string, fetchedAt time.Time) RateSnapshot {
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return RateSnapshot{
		Pivot:     pivot,
		Source:    source,
		FetchedAt: fetchedAt,
		rates:     cp,
	}
}

// EmptySnapshot returns a snapshot with no rates for pivot.
func EmptySnapshot(pivot string) RateSnapshot {
	return RateSnapshot{Pivot: pivot}
}

// Rate returns the rate for code. The pivot always has rate 1.
func (s RateSnapshot) Rate(code string) (float64, bool) {
	if code == s.Pivot && code != "" {
		return 1, true
	}
	r, ok := s.rates[code]
	return r, ok
}

// Len returns the number of rates held.
func (s RateSnapshot) Len() int {
	return len(s.rates)
}

// IsEmpty reports whether the snapshot carries no rates at all.
func (s RateSnapshot) IsEmpty() bool {
	return len(s.rates) == 0
}

// Rates returns a copy of the rate table.
func (s RateSnapshot) Rates() map[string]float64 {
	cp := make(map[string]float64, len(s.rates))
	for k, v := range s.rates {
		cp[k] = v
	}
	return cp
}

type snapshotJSON struct {
	Pivot     string             `json:"pivot"`
	Source    string             `json:"source,omitempty"`
	FetchedAt time.Time          `json:"fetched_at"`
	Rates     map[string]float64 `json:"rates"`
}

// MarshalJSON implements json.Marshaler.
func (s RateSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Pivot:     s.Pivot,
		Source:    s.Source,
		FetchedAt: s.FetchedAt,
		Rates:     s.rates,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RateSnapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewRateSnapshot(raw.Pivot, raw.Rates, raw.Source, raw.FetchedAt)
	return nil
}
