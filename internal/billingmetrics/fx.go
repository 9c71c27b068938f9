package billingmetrics

import (
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/service"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billingmetrics.service",
	fx.Provide(provideServiceConfig),
	fx.Provide(service.NewService),
)

// The report variant is read from the ReportConfigHolder on every run, so
// IncludeGrowth here is only the fallback.
func provideServiceConfig(cfg config.Config, reports *config.ReportConfigHolder) service.Config {
	return service.Config{
		Location:         cfg.Location(),
		PageSize:         domain.DefaultPageSize,
		IncludeGrowth:    reports.Get().IncludeGrowth,
		RecomputeTimeout: cfg.RunTimeoutOrDefault(),
	}
}
