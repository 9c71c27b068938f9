package cache

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenuepulse/internal/clock"
)

const (
	// CurrentKey identifies MRR computed without an as-of cutoff.
	CurrentKey = "current"

	DefaultMRRTTL = time.Hour
)

// MRRCache stores computed MRR totals keyed by MRRKey.
type MRRCache interface {
	Get(key string) (decimal.Decimal, bool)
	Set(key string, amount decimal.Decimal)
}

type mrrCache struct {
	amounts Cache[string, decimal.Decimal]
	ttl     time.Duration
}

// NewMRRCache returns a TTL-bound MRR cache. A non-positive ttl disables
// caching entirely: every lookup misses and nothing is stored.
func NewMRRCache(ttl time.Duration, clk clock.Clock) MRRCache {
	if ttl <= 0 {
		return disabledMRRCache{}
	}
	return &mrrCache{
		amounts: NewTTLCache[string, decimal.Decimal](clk),
		ttl:     ttl,
	}
}

func (c *mrrCache) Get(key string) (decimal.Decimal, bool) {
	return c.amounts.Get(key)
}

func (c *mrrCache) Set(key string, amount decimal.Decimal) {
	c.amounts.Set(key, amount, c.ttl)
}

type disabledMRRCache struct{}

func (disabledMRRCache) Get(string) (decimal.Decimal, bool) { return decimal.Zero, false }

func (disabledMRRCache) Set(string, decimal.Decimal) {}

// MRRKey returns "current" for a nil cutoff, otherwise the cutoff in epoch
// milliseconds.
func MRRKey(asOf *time.Time) string {
	if asOf == nil {
		return CurrentKey
	}
	return strconv.FormatInt(asOf.UnixMilli(), 10)
}
