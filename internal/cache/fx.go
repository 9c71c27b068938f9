package cache

import (
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(NewMRRCacheFromConfig),
)

func NewMRRCacheFromConfig(cfg config.Config, clk clock.Clock) MRRCache {
	return NewMRRCache(cfg.MRRCacheTTL, clk)
}
