package cache

import (
	"testing"
	"time"

	"expenses/internal/core"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLRU[T any](maxSize int, ttl time.Duration) (*LRUCache[T], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[T](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheStoresSnapshots(t *testing.T) {
	c, _ := newTestLRU[core.RateSnapshot](3, time.Hour)
	snap := core.NewRateSnapshot("USD", map[string]float64{"EUR": 0.85}, "static", time.Time{})

	c.Set("USD", snap)
	got, found := c.Get("USD")
	if !found {
		t.Fatal("expected snapshot in cache")
	}
	if r, ok := got.Rate("EUR"); !ok || r != 0.85 || got.Pivot != "USD" {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	c, _ := newTestLRU[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Set("key4", "value4") // evicts key1

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, k := range []string{"key2", "key3", "key4"} {
		if _, found := c.Get(k); !found {
			t.Errorf("%s should still exist", k)
		}
	}
	if c.Size() != 3 {
		t.Errorf("Size = %d, want 3", c.Size())
	}
}

func TestLRUCacheGetRefreshesRecency(t *testing.T) {
	c, _ := newTestLRU[string](2, time.Hour)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3") // evicts b, not a

	if _, found := c.Get("a"); !found {
		t.Error("a was recently used and should remain")
	}
	if _, found := c.Get("b"); found {
		t.Error("b should have been evicted")
	}
}

// TestLRUCacheTTLExpiration tests time-based expiration
func TestLRUCacheTTLExpiration(t *testing.T) {
	c, clock := newTestLRU[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	clock.advance(60 * time.Millisecond)
	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be dropped on read, size %d", c.Size())
	}
}

// TestLRUCacheCleanExpired tests the cleanup mechanism
func TestLRUCacheCleanExpired(t *testing.T) {
	c, clock := newTestLRU[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	clock.advance(30 * time.Millisecond)
	c.Set("key3", "value3")
	clock.advance(30 * time.Millisecond)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("Expected 2 items cleaned, got %d", removed)
	}
	if _, found := c.Get("key3"); !found {
		t.Error("key3 has not expired yet")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c, _ := newTestLRU[string](10, time.Hour)
	c.Set("k", "v")
	c.Delete("k")
	c.Delete("missing")
	if _, found := c.Get("k"); found {
		t.Error("k should be deleted")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	a, clockA := newTestLRU[string](10, time.Minute)
	b, clockB := newTestLRU[int](10, time.Minute)
	a.Set("x", "1")
	b.Set("y", 2)
	b.Set("z", 3)
	clockA.advance(2 * time.Minute)
	clockB.advance(2 * time.Minute)

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	if n := m.CleanNow(); n != 3 {
		t.Errorf("CleanNow removed %d, want 3", n)
	}

	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

// BenchmarkLRUCache benchmarks cache performance
func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[core.RateSnapshot](1000, time.Hour)
	snap := core.EmptySnapshot("USD")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("USD", snap)
		} else {
			c.Get("USD")
		}
	}
}
