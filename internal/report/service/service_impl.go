package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	obslogger "github.com/smallbiznis/revenuepulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"github.com/smallbiznis/revenuepulse/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const releaseTimeout = 5 * time.Second

type Params struct {
	fx.In

	Metrics       metricsdomain.Service
	Sinks         []reportdomain.Sink `group:"report_sinks"`
	Reports       *config.ReportConfigHolder
	Config        config.Config
	Limiter       *ratelimit.ReportLimiter `optional:"true"`
	GenID         *snowflake.Node
	Clock         clock.Clock
	Log           *zap.Logger
	ReportMetrics *obsmetrics.ReportMetrics `optional:"true"`
}

type Service struct {
	metricsSvc metricsdomain.Service
	reports    *config.ReportConfigHolder
	limiter    *ratelimit.ReportLimiter
	genID      *snowflake.Node
	clock      clock.Clock
	log        *zap.Logger
	metrics    *obsmetrics.ReportMetrics
	loc        *time.Location
	formatter  *Formatter
	dispatcher *Dispatcher
}

func NewService(p Params) reportdomain.Service {
	log := p.Log.Named("report.service")
	loc := p.Config.Location()
	return &Service{
		metricsSvc: p.Metrics,
		reports:    p.Reports,
		limiter:    p.Limiter,
		genID:      p.GenID,
		clock:      p.Clock,
		log:        log,
		metrics:    p.ReportMetrics,
		loc:        loc,
		formatter:  NewFormatter(loc),
		dispatcher: NewDispatcher(p.Sinks, log, p.ReportMetrics),
	}
}

func (s *Service) Render(snapshot metricsdomain.Snapshot) reportdomain.Report {
	return s.formatter.Format(snapshot, s.reports.Get().Title)
}

func (s *Service) Run(ctx context.Context, opts reportdomain.RunOptions) (reportdomain.RunResult, error) {
	trigger := opts.Trigger
	if trigger == "" {
		trigger = reportdomain.TriggerManual
	}
	start := time.Now()
	result := reportdomain.RunResult{
		RunID:   s.genID.Generate().String(),
		Trigger: trigger,
	}
	ctx = correlation.WithRunID(ctx, result.RunID)
	log := obslogger.WithContext(ctx, s.log).With(zap.String("trigger", trigger))
	log.Info("report.run.start")
	s.metrics.IncRun(trigger)

	err := s.run(ctx, log, opts, &result)
	s.metrics.ObserveRunDuration(trigger, time.Since(start))
	if err != nil {
		s.metrics.IncRunError(trigger, err)
		log.Error("report.run.failed",
			zap.String("error_type", obsmetrics.ClassifyReportError(err)),
			zap.Strings("delivered", result.Delivered),
			zap.Error(err),
		)
		return result, err
	}

	log.Info("report.run.finish",
		zap.Bool("skipped", result.Skipped),
		zap.Strings("delivered", result.Delivered),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return result, nil
}

func (s *Service) run(ctx context.Context, log *zap.Logger, opts reportdomain.RunOptions, result *reportdomain.RunResult) error {
	reportCfg := s.reports.Get()
	sinks, err := s.dispatcher.Select(reportCfg.Sinks)
	if err != nil {
		return err
	}

	release := func() {}
	if opts.Guard {
		date := s.clock.Now().In(s.loc).Format("2006-01-02")
		token, ok, lockErr := s.limiter.TryLockReport(ctx, date)
		switch {
		case lockErr != nil:
			// fail open
			log.Warn("report lock unavailable, delivering without guard", zap.String("date", date), zap.Error(lockErr))
		case !ok:
			log.Info("report already claimed for date", zap.String("date", date))
			s.metrics.IncRunSkipped(obsmetrics.ReportSkipReasonAlreadyDelivered)
			result.Skipped = true
			return nil
		default:
			release = func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
				defer cancel()
				if err := s.limiter.ReleaseReport(releaseCtx, date, token); err != nil {
					log.Warn("release report lock failed", zap.String("date", date), zap.Error(err))
				}
			}
		}
	}

	snapshot, err := s.metricsSvc.ComputeMetrics(ctx, metricsdomain.ComputeOptions{IncludeGrowth: reportCfg.IncludeGrowth})
	if err != nil {
		release()
		return fmt.Errorf("compute metrics: %w", err)
	}

	report := s.formatter.Format(snapshot, reportCfg.Title)
	result.Report = report

	delivered, err := s.dispatcher.Deliver(ctx, report, sinks)
	result.Delivered = delivered
	if err != nil {
		// keep the claim once any sink has the report
		if len(delivered) == 0 {
			release()
		}
		return err
	}

	s.metrics.SetLastSuccess(s.clock.Now())
	return nil
}
