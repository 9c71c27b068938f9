package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheServesUntilAgeReachesTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](clk)

	c.Set("a", 42, time.Hour)

	clk.Advance(59 * time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	clk.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry aged exactly ttl must not be served")
}

func TestTTLCacheOverwriteRefreshesTimestamp(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](clk)

	c.Set("a", 1, time.Hour)
	clk.Advance(50 * time.Minute)
	c.Set("a", 2, time.Hour)
	clk.Advance(50 * time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheSetDropsExpiredEntries(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](clk)

	for i, key := range []string{"1772355600000", "1772355601000", "1772355602000"} {
		c.Set(key, i, time.Hour)
	}
	require.Equal(t, 3, c.Len())

	clk.Advance(30 * time.Minute)
	c.Set("current", 7, time.Hour)
	assert.Equal(t, 4, c.Len(), "live entries are kept")

	clk.Advance(30 * time.Minute)
	c.Set("1772359200000", 8, time.Hour)
	assert.Equal(t, 2, c.Len())

	v, ok := c.Get("current")
	require.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = c.Get("1772355600000")
	assert.False(t, ok)
}

func TestMRRKey(t *testing.T) {
	assert.Equal(t, CurrentKey, MRRKey(nil))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "1772355600000", MRRKey(&at))
}

func TestDisabledMRRCacheNeverHits(t *testing.T) {
	c := NewMRRCache(0, clock.NewFakeClock(time.Now()))
	c.Set(CurrentKey, decimal.NewFromInt(10))

	_, ok := c.Get(CurrentKey)
	assert.False(t, ok)
}

func TestMRRCacheHit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewMRRCache(DefaultMRRTTL, clk)
	c.Set(CurrentKey, decimal.RequireFromString("123.45"))

	v, ok := c.Get(CurrentKey)
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.RequireFromString("123.45")))
}
