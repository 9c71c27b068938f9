package datasource

import (
	"fmt"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/datasource/memory"
	"github.com/smallbiznis/revenuepulse/internal/datasource/stripe"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("datasource",
	fx.Provide(NewDataSource),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// NewDataSource selects the subscription provider named by DATA_SOURCE.
func NewDataSource(p Params) (domain.DataSource, error) {
	switch p.Config.DataSource {
	case config.DataSourceMemory:
		src, err := memory.LoadFile(p.Config.FixturesPath)
		if err != nil {
			return nil, err
		}
		p.Log.Info("using fixture data source", zap.String("path", p.Config.FixturesPath))
		return src, nil
	case config.DataSourceStripe, "":
		api := stripe.NewClient(p.Config.StripeAPIKey, p.Config.StripeAPIURL)
		return stripe.NewSource(api, p.Log, p.Metrics), nil
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", config.ErrInvalidConfig, p.Config.DataSource)
	}
}
