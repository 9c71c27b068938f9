package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/internal/cache"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultRecomputeTimeout = 2 * time.Minute

// Config tunes the engine. The zero value reports in UTC with the default
// page size and without growth.
type Config struct {
	Location      *time.Location
	PageSize      int
	IncludeGrowth bool
	// RecomputeTimeout bounds a shared MRR recompute, which outlives any
	// single caller's context.
	RecomputeTimeout time.Duration
}

type Params struct {
	fx.In

	DataSource domain.DataSource
	Cache      cache.MRRCache
	Clock      clock.Clock
	Log        *zap.Logger
	Config     Config                     `optional:"true"`
	Metrics    *obsmetrics.Metrics        `optional:"true"`
	Reports    *config.ReportConfigHolder `optional:"true"`
}

type Service struct {
	source  domain.DataSource
	cache   cache.MRRCache
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	cfg     Config
	reports *config.ReportConfigHolder

	recompute singleflight.Group
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	cfg := p.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = domain.DefaultPageSize
	}
	if cfg.RecomputeTimeout <= 0 {
		cfg.RecomputeTimeout = defaultRecomputeTimeout
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source:  p.DataSource,
		cache:   p.Cache,
		clock:   p.Clock,
		log:     log.Named("billingmetrics.service"),
		metrics: p.Metrics,
		cfg:     cfg,
		reports: p.Reports,
	}
}

// CalculateMRR returns monthly recurring revenue in major units. A nil asOf
// means "now"; otherwise only subscriptions created at or before asOf count.
func (s *Service) CalculateMRR(ctx context.Context, asOf *time.Time) (decimal.Decimal, error) {
	key := cache.MRRKey(asOf)
	if amount, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheLookup(ctx, key, true)
		return amount, nil
	}
	s.metrics.RecordCacheLookup(ctx, key, false)

	// Shared by every caller waiting on key: it ignores the first caller's
	// cancellation, while each caller stops waiting when its own ctx ends.
	done := s.recompute.DoChan(key, func() (interface{}, error) {
		if amount, ok := s.cache.Get(key); ok {
			return amount, nil
		}
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecomputeTimeout)
		defer cancel()

		amount, err := s.sumMRR(workCtx, asOf)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, amount)
		return amount, nil
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-done:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		if res.Shared {
			s.log.Debug("mrr recompute shared", zap.String("cache_key", key))
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (s *Service) sumMRR(ctx context.Context, asOf *time.Time) (decimal.Decimal, error) {
	req := domain.ListSubscriptionsRequest{PageSize: s.cfg.PageSize}
	if asOf != nil {
		cutoff := *asOf
		req.CreatedLTE = &cutoff
	}

	total := decimal.Zero
	pages := 0
	counted := 0
	for {
		page, err := s.source.ListSubscriptions(ctx, req)
		if err != nil {
			return decimal.Zero, domain.NewDataSourceError("list_subscriptions", err)
		}
		pages++

		for _, sub := range page.Data {
			if sub.Status == domain.SubscriptionStatusTrialing {
				continue
			}
			total = total.Add(s.contribution(ctx, sub))
			counted++
		}

		if !page.PageInfo.HasMore {
			break
		}
		if page.PageInfo.NextPageToken == "" {
			return decimal.Zero, domain.NewDataSourceError("list_subscriptions", domain.ErrMissingPageToken)
		}
		req.PageToken = page.PageInfo.NextPageToken
	}

	s.log.Debug("mrr computed",
		zap.String("cache_key", cache.MRRKey(asOf)),
		zap.Int("pages", pages),
		zap.Int("subscriptions", counted),
		zap.String("mrr", total.StringFixed(2)),
	)
	return total, nil
}

// ComputeDailyMetrics computes a snapshot using the current report variant.
func (s *Service) ComputeDailyMetrics(ctx context.Context) (domain.Snapshot, error) {
	return s.ComputeMetrics(ctx, domain.ComputeOptions{IncludeGrowth: s.includeGrowth()})
}

// includeGrowth follows report.yml reloads when a holder is wired.
func (s *Service) includeGrowth() bool {
	if s.reports != nil {
		return s.reports.Get().IncludeGrowth
	}
	return s.cfg.IncludeGrowth
}

// ComputeMetrics runs every metric concurrently. The first failure cancels the
// rest and no partial snapshot is returned.
func (s *Service) ComputeMetrics(ctx context.Context, opts domain.ComputeOptions) (domain.Snapshot, error) {
	computedAt := s.clock.Now()

	var (
		mrr          decimal.Decimal
		churn        float64
		newCustomers int64
		growth       float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.measure(gctx, domain.MetricMRR, func() (err error) {
			mrr, err = s.CalculateMRR(gctx, nil)
			return err
		})
	})
	g.Go(func() error {
		return s.measure(gctx, domain.MetricChurnRate, func() (err error) {
			churn, err = s.CalculateChurnRate(gctx)
			return err
		})
	})
	g.Go(func() error {
		return s.measure(gctx, domain.MetricNewCustomers, func() (err error) {
			newCustomers, err = s.CountNewCustomers(gctx)
			return err
		})
	})
	if opts.IncludeGrowth {
		g.Go(func() error {
			return s.measure(gctx, domain.MetricGrowthRate, func() (err error) {
				growth, err = s.CalculateGrowthRate(gctx)
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Warn("metrics computation failed", zap.Error(err))
		return domain.Snapshot{}, err
	}

	snapshot := domain.Snapshot{
		MonthlyRecurringRevenue: mrr,
		ChurnRatePercent:        churn,
		NewCustomerCount:        newCustomers,
		ComputedAt:              computedAt,
	}
	if opts.IncludeGrowth {
		snapshot.MRRGrowthRatePercent = &growth
	}

	s.log.Info("metrics computed",
		zap.String("mrr", mrr.StringFixed(2)),
		zap.Float64("churn_rate_percent", churn),
		zap.Int64("new_customers", newCustomers),
		zap.Bool("include_growth", opts.IncludeGrowth),
	)
	return snapshot, nil
}

func (s *Service) measure(ctx context.Context, metric string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveMetricDuration(ctx, metric, time.Since(start), err)
	return domain.NewMetricsComputationError(metric, err)
}
