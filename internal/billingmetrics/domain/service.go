package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Service computes subscription health metrics.
type Service interface {
	CalculateMRR(ctx context.Context, asOf *time.Time) (decimal.Decimal, error)
	CalculateChurnRate(ctx context.Context) (float64, error)
	CountNewCustomers(ctx context.Context) (int64, error)
	CalculateGrowthRate(ctx context.Context) (float64, error)
	ComputeDailyMetrics(ctx context.Context) (Snapshot, error)
	ComputeMetrics(ctx context.Context, opts ComputeOptions) (Snapshot, error)
}
