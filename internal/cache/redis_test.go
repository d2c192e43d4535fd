package cache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
)

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache[core.RateSnapshot]("not a url", "rates:", time.Hour, nil)
	assert.Error(t, err)
}

// Runs against a live server when EXPENSES_TEST_REDIS_URL is set.
func TestRedisCacheRoundTrip(t *testing.T) {
	url := os.Getenv("EXPENSES_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EXPENSES_TEST_REDIS_URL not set")
	}

	prefix := "expenses-test:" + time.Now().Format("150405.000000") + ":"
	c, err := NewRedisCache[core.RateSnapshot](url, prefix, time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, found := c.Get("USD")
	assert.False(t, found)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set("USD", core.NewRateSnapshot("USD", map[string]float64{"EUR": 0.85}, "static", at))

	got, found := c.Get("USD")
	require.True(t, found)
	assert.Equal(t, "USD", got.Pivot)
	rate, ok := got.Rate("EUR")
	require.True(t, ok)
	assert.Equal(t, 0.85, rate)
	assert.True(t, at.Equal(got.FetchedAt))
	assert.Equal(t, 1, c.Size())

	c.Delete("USD")
	_, found = c.Get("USD")
	assert.False(t, found)
}
