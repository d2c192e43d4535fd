package storage

import (
	"context"
	"sync"
)

// MemoryGateway keeps state in process memory. Used by tests and the
// memory backend.
type MemoryGateway struct {
	mu     sync.RWMutex
	values map[string][]byte
	saves  int
	closed bool
}

// NewMemoryGateway returns a gateway seeded with initial.
func NewMemoryGateway(initial State) *MemoryGateway {
	g := &MemoryGateway{values: make(map[string][]byte)}
	g.put(initial)
	return g
}

func (g *MemoryGateway) put(st State) {
	for _, e := range st.entries() {
		if e.value == nil {
			delete(g.values, e.key)
			continue
		}
		g.values[e.key] = append([]byte{}, e.value...)
	}
}

// Load implements Gateway.
func (g *MemoryGateway) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return State{}, ErrClosed
	}
	return stateFrom(func(key string) ([]byte, bool) {
		v, ok := g.values[key]
		return v, ok
	}), nil
}

// Save implements Gateway.
func (g *MemoryGateway) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.put(st)
	g.saves++
	return nil
}

// SetRaw stores value under key as is, bypassing State. Useful for
// simulating corrupt data.
func (g *MemoryGateway) SetRaw(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[key] = []byte(value)
}

// Saves returns how many times Save succeeded.
func (g *MemoryGateway) Saves() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.saves
}

// Close implements Gateway.
func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
