package service

import (
	"context"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"go.uber.org/zap"
)

const churnWindow = 30 * 24 * time.Hour

// CalculateChurnRate returns subscriptions canceled in the last 30 days as a
// percentage of those active at the window start plus those created inside it.
func (s *Service) CalculateChurnRate(ctx context.Context) (float64, error) {
	now := s.clock.Now()
	start := now.Add(-churnWindow)

	active, err := s.countSubscriptions(ctx, "count_active_at_start", domain.And(
		domain.StatusIs(domain.SubscriptionStatusActive),
		domain.Created(domain.OpLess, start),
	))
	if err != nil {
		return 0, err
	}

	canceled, err := s.countSubscriptions(ctx, "count_canceled_in_window", domain.And(
		domain.StatusIs(domain.SubscriptionStatusCanceled),
		domain.CanceledAt(domain.OpGreater, start),
		domain.CanceledAt(domain.OpLess, now),
	))
	if err != nil {
		return 0, err
	}

	created, err := s.countSubscriptions(ctx, "count_created_in_window", domain.And(
		domain.Created(domain.OpGreater, start),
		domain.Created(domain.OpLess, now),
	))
	if err != nil {
		return 0, err
	}

	rate := churnRate(active, canceled, created)
	s.log.Debug("churn computed",
		zap.Int64("active_at_start", active),
		zap.Int64("canceled", canceled),
		zap.Int64("created", created),
		zap.Float64("churn_rate_percent", rate),
	)
	return rate, nil
}

// CountNewCustomers counts customers created since the start of the current
// month in the reporting timezone, inclusive of the first instant.
func (s *Service) CountNewCustomers(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	monthStart := startOfMonth(now, s.cfg.Location)

	count, err := s.source.CountCustomers(ctx, domain.And(
		domain.Created(domain.OpGreaterOrEqual, monthStart),
		domain.Created(domain.OpLessOrEqual, now),
	))
	if err != nil {
		return 0, domain.NewDataSourceError("count_customers", err)
	}
	return count, nil
}

// CalculateGrowthRate compares current MRR against MRR as of 30 days ago.
func (s *Service) CalculateGrowthRate(ctx context.Context) (float64, error) {
	now := s.clock.Now()
	previousAt := now.Add(-churnWindow)

	current, err := s.CalculateMRR(ctx, nil)
	if err != nil {
		return 0, err
	}
	previous, err := s.CalculateMRR(ctx, &previousAt)
	if err != nil {
		return 0, err
	}

	if previous.IsZero() {
		return 0, nil
	}
	return current.Sub(previous).Div(previous).Mul(hundred).InexactFloat64(), nil
}

func (s *Service) countSubscriptions(ctx context.Context, op string, query domain.Query) (int64, error) {
	count, err := s.source.CountSubscriptions(ctx, query)
	if err != nil {
		return 0, domain.NewDataSourceError(op, err)
	}
	return count, nil
}

func churnRate(activeAtStart, canceled, created int64) float64 {
	denominator := activeAtStart + created
	if denominator == 0 {
		return 0
	}
	return float64(canceled) / float64(denominator) * 100
}

func startOfMonth(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}
