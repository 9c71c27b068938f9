package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Reports   reportdomain.Service
	Schedule  *config.ReportConfigHolder
	AppConfig config.Config
	Clock     clock.Clock
	Log       *zap.Logger
	Config    Config                    `optional:"true"`
	Metrics   *obsmetrics.ReportMetrics `optional:"true"`
}

// Scheduler delivers the daily report at the configured local time.
type Scheduler struct {
	reports  reportdomain.Service
	schedule *config.ReportConfigHolder
	clock    clock.Clock
	log      *zap.Logger
	cfg      Config
	loc      *time.Location
	metrics  *obsmetrics.ReportMetrics

	// wait blocks for d or until ctx is done, reporting whether d elapsed.
	wait func(ctx context.Context, d time.Duration) bool
}

func New(p Params) (*Scheduler, error) {
	if p.Reports == nil || p.Schedule == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		reports:  p.Reports,
		schedule: p.Schedule,
		clock:    p.Clock,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		loc:      p.AppConfig.Location(),
		metrics:  p.Metrics,
		wait:     sleep,
	}, nil
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, loc *time.Location, hour, minute int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Next reads the current schedule and returns the next delivery time.
func (s *Scheduler) Next() (time.Time, error) {
	hour, minute, err := s.schedule.Get().ScheduleTime()
	if err != nil {
		return time.Time{}, err
	}
	return NextRun(s.clock.Now(), s.loc, hour, minute), nil
}

// RunOnce delivers one guarded report within the run timeout.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	result, err := s.reports.Run(ctx, reportdomain.RunOptions{
		Trigger: reportdomain.TriggerScheduled,
		Guard:   true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("scheduled report timed out",
				zap.String("run_id", result.RunID),
				zap.Duration("timeout", s.cfg.RunTimeout),
				zap.Error(err),
			)
		}
		return fmt.Errorf("scheduled report: %w", err)
	}
	return nil
}

// RunForever sleeps until each scheduled time and runs the report. Failures
// are logged and the loop waits for the next day.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		next, err := s.Next()
		if err != nil {
			s.log.Error("read report schedule failed", zap.Error(err))
			if !s.wait(ctx, s.cfg.RetryDelay) {
				return
			}
			continue
		}

		s.log.Info("scheduler.next_run", zap.Time("at", next))
		if !s.wait(ctx, next.Sub(s.clock.Now())) {
			return
		}

		if lag := s.clock.Now().Sub(next); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
