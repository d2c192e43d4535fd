// Package storage persists a report session as three string values keyed
// by name. Backends are interchangeable behind Gateway.
package storage

import (
	"context"
	"errors"
)

// Persisted keys.
const (
	KeyExpenses     = "expenses"
	KeyReportName   = "report-name"
	KeyBaseCurrency = "base-currency"
)

// ErrClosed is returned by a gateway used after Close.
var ErrClosed = errors.New("storage closed")

// State is the persisted form of a session. A nil Expenses means the key
// was absent; empty strings likewise mean absent metadata.
type State struct {
	Expenses     []byte
	ReportName   string
	BaseCurrency string
}

// Gateway loads and saves session state.
type Gateway interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Close() error
}

// entries lists the key/value pairs to write. Absent values are nil.
func (s State) entries() []entry {
	return []entry{
		{KeyExpenses, s.Expenses},
		{KeyReportName, optional(s.ReportName)},
		{KeyBaseCurrency, optional(s.BaseCurrency)},
	}
}

type entry struct {
	key   string
	value []byte
}

func optional(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// stateFrom builds a State from a lookup over stored values.
func stateFrom(get func(key string) ([]byte, bool)) State {
	var st State
	if v, ok := get(KeyExpenses); ok {
		st.Expenses = append([]byte{}, v...)
	}
	if v, ok := get(KeyReportName); ok {
		st.ReportName = string(v)
	}
	if v, ok := get(KeyBaseCurrency); ok {
		st.BaseCurrency = string(v)
	}
	return st
}
