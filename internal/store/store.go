// Package store holds the ordered, in-memory collection of expense records
// for one report and its persisted JSON form.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"expenses/internal/core"
)

// ErrCorruptState is returned by Deserialize when persisted data cannot be decoded.
var ErrCorruptState = errors.New("corrupt persisted state")

// Store is the ordered collection of records. It is not safe for concurrent
// writers; callers serialize mutations.
type Store struct {
	records []core.Record
	lastID  int64
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for ids and default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store holding records in the given order.
func New(records []core.Record, opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.records = append([]core.Record(nil), records...)
	for _, r := range s.records {
		if r.ID > s.lastID {
			s.lastID = r.ID
		}
	}
	return s
}

// Default creates a store with a single blank record in baseCurrency.
func Default(baseCurrency string, opts ...Option) *Store {
	s := New(nil, opts...)
	s.Add(core.Record{Currency: baseCurrency})
	return s
}

// nextID derives ids from the clock in milliseconds, forcing them to increase.
func (s *Store) nextID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Add appends r with a freshly generated id and returns the stored record.
func (s *Store) Add(r core.Record) core.Record {
	r.ID = s.nextID()
	s.records = append(s.records, r)
	return r
}

// AddBlank appends an empty record dated today in the given currency.
func (s *Store) AddBlank(currency string) core.Record {
	return s.Add(core.Record{
		Date:     s.now().Format(core.DateLayout),
		Currency: currency,
	})
}

// Remove deletes the record with id. It reports whether a record was removed.
func (s *Store) Remove(id int64) bool {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

// Update applies u to the record with id. A missing id is not an error
// and reports false.
func (s *Store) Update(id int64, u Update) (bool, error) {
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		r := s.records[i]
		if err := u.apply(&r); err != nil {
			return false, fmt.Errorf("update %s: %w", u.Field(), err)
		}
		s.records[i] = r
		return true, nil
	}
	return false, nil
}

// Clone returns an independent copy of the store, including its id
// sequence.
func (s *Store) Clone() *Store {
	c := *s
	c.records = append([]core.Record(nil), s.records...)
	return &c
}

// Get returns the record with id.
func (s *Store) Get(id int64) (core.Record, bool) {
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return core.Record{}, false
}

// Records returns a copy of the records in order.
func (s *Store) Records() []core.Record {
	return append([]core.Record(nil), s.records...)
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Serialize encodes the records as a JSON array.
func (s *Store) Serialize() ([]byte, error) {
	records := s.records
	if records == nil {
		records = []core.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// Deserialize decodes a JSON array produced by Serialize. On malformed input
// it returns ErrCorruptState together with a usable default store holding
// one blank record in baseCurrency.
func Deserialize(data []byte, baseCurrency string, opts ...Option) (*Store, error) {
	var records []core.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return Default(baseCurrency, opts...), fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if records == nil {
		return Default(baseCurrency, opts...), fmt.Errorf("%w: expected a JSON array", ErrCorruptState)
	}
	if err := checkIDs(records); err != nil {
		return Default(baseCurrency, opts...), err
	}
	return New(records, opts...), nil
}

func checkIDs(records []core.Record) error {
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate record id %d", ErrCorruptState, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
