package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain/mocks"
	"github.com/smallbiznis/revenuepulse/internal/cache"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, source domain.DataSource, clk clock.Clock, cfg Config) *Service {
	t.Helper()
	return newService(Params{
		DataSource: source,
		Cache:      cache.NewMRRCache(time.Hour, clk),
		Clock:      clk,
		Log:        zap.NewNop(),
		Config:     cfg,
	})
}

func TestCalculateMRRNormalization(t *testing.T) {
	created := testNow.AddDate(-1, 0, 0)

	tests := []struct {
		name string
		sub  domain.SubscriptionRecord
		want string
	}{
		{
			name: "yearly divided by twelve",
			sub: domain.SubscriptionRecord{
				ID: "sub_year", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 120000, Quantity: 1, Interval: domain.IntervalYear, IntervalCount: 1,
			},
			want: "100.00",
		},
		{
			name: "every three months divided by count",
			sub: domain.SubscriptionRecord{
				ID: "sub_quarter", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 30000, Quantity: 1, Interval: domain.IntervalMonth, IntervalCount: 3,
			},
			want: "100.00",
		},
		{
			name: "weekly scaled to a month",
			sub: domain.SubscriptionRecord{
				ID: "sub_week", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 1200, Quantity: 1, Interval: domain.IntervalWeek, IntervalCount: 1,
			},
			want: "52.00",
		},
		{
			name: "daily scaled to a month",
			sub: domain.SubscriptionRecord{
				ID: "sub_day", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 120, Quantity: 1, Interval: domain.IntervalDay, IntervalCount: 1,
			},
			want: "36.50",
		},
		{
			name: "quantity multiplies",
			sub: domain.SubscriptionRecord{
				ID: "sub_seats", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 1000, Quantity: 5, Interval: domain.IntervalMonth, IntervalCount: 1,
			},
			want: "50.00",
		},
		{
			name: "missing quantity and count default to one",
			sub: domain.SubscriptionRecord{
				ID: "sub_bare", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 2500, Interval: domain.IntervalMonth,
			},
			want: "25.00",
		},
		{
			name: "unknown interval treated as monthly",
			sub: domain.SubscriptionRecord{
				ID: "sub_odd", Status: domain.SubscriptionStatusActive, Created: created,
				Amount: 4200, Quantity: 1, Interval: domain.Interval("fortnight"), IntervalCount: 1,
			},
			want: "42.00",
		},
		{
			name: "trialing excluded",
			sub: domain.SubscriptionRecord{
				ID: "sub_trial", Status: domain.SubscriptionStatusTrialing, Created: created,
				Amount: 10000, Quantity: 1, Interval: domain.IntervalMonth, IntervalCount: 1,
			},
			want: "0.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{subscriptions: []domain.SubscriptionRecord{tt.sub}}
			svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

			mrr, err := svc.CalculateMRR(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mrr.StringFixed(2))
		})
	}
}

func TestCalculateMRRDiscountsAndTax(t *testing.T) {
	created := testNow.AddDate(0, -2, 0)

	tests := []struct {
		name     string
		discount *domain.Discount
		taxRates []float64
		want     string
	}{
		{
			name:     "percent off",
			discount: &domain.Discount{PercentOff: 50, Duration: domain.DiscountDurationForever},
			want:     "50.00",
		},
		{
			name:     "repeating amount off spread over months",
			discount: &domain.Discount{AmountOff: 2000, Duration: domain.DiscountDurationRepeating, DurationInMonths: 4},
			want:     "95.00",
		},
		{
			name:     "once amount off applied in full",
			discount: &domain.Discount{AmountOff: 2000, Duration: domain.DiscountDurationOnce},
			want:     "80.00",
		},
		{
			name:     "repeating without months applies raw amount",
			discount: &domain.Discount{AmountOff: 2000, Duration: domain.DiscountDurationRepeating},
			want:     "80.00",
		},
		{
			name:     "amount off floors at zero",
			discount: &domain.Discount{AmountOff: 50000, Duration: domain.DiscountDurationForever},
			want:     "0.00",
		},
		{
			name:     "tax applied after discount",
			discount: &domain.Discount{PercentOff: 10, Duration: domain.DiscountDurationForever},
			taxRates: []float64{10},
			want:     "99.00",
		},
		{
			name:     "only first tax rate applies",
			taxRates: []float64{20, 50},
			want:     "120.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := monthlySub("sub_1", 10000, created)
			sub.Discount = tt.discount
			sub.TaxRates = tt.taxRates

			source := &fakeSource{subscriptions: []domain.SubscriptionRecord{sub}}
			svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

			mrr, err := svc.CalculateMRR(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mrr.StringFixed(2))
		})
	}
}

func TestCalculateMRRDrainsAllPages(t *testing.T) {
	source := &fakeSource{subscriptions: manySubs(300, 100, testNow.AddDate(0, -1, 0))}
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	mrr, err := svc.CalculateMRR(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(300).Equal(mrr), "got %s", mrr)
	require.Len(t, source.listCalls, 3)
	assert.Empty(t, source.listCalls[0].PageToken)
	assert.NotEmpty(t, source.listCalls[2].PageToken)
	for _, req := range source.listCalls {
		assert.Equal(t, domain.DefaultPageSize, req.PageSize)
	}
}

func TestCalculateMRRAsOfCutoff(t *testing.T) {
	asOf := testNow.Add(-30 * 24 * time.Hour)
	source := &fakeSource{subscriptions: []domain.SubscriptionRecord{
		monthlySub("sub_old", 10000, asOf.Add(-time.Hour)),
		monthlySub("sub_edge", 5000, asOf),
		monthlySub("sub_new", 7000, asOf.Add(time.Hour)),
	}}
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	mrr, err := svc.CalculateMRR(context.Background(), &asOf)
	require.NoError(t, err)
	assert.Equal(t, "150.00", mrr.StringFixed(2))

	current, err := svc.CalculateMRR(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "220.00", current.StringFixed(2))
}

func TestCalculateMRRCacheTTL(t *testing.T) {
	clk := clock.NewFakeClock(testNow)
	source := &fakeSource{subscriptions: []domain.SubscriptionRecord{monthlySub("sub_1", 10000, testNow.AddDate(0, -1, 0))}}
	svc := newTestService(t, source, clk, Config{})
	ctx := context.Background()

	_, err := svc.CalculateMRR(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, source.listCallsFor(nil))

	clk.Advance(59 * time.Minute)
	source.subscriptions = append(source.subscriptions, monthlySub("sub_2", 5000, testNow))
	cached, err := svc.CalculateMRR(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "100.00", cached.StringFixed(2))
	assert.Equal(t, 1, source.listCallsFor(nil))

	clk.Advance(time.Minute)
	fresh, err := svc.CalculateMRR(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "150.00", fresh.StringFixed(2))
	assert.Equal(t, 2, source.listCallsFor(nil))
}

func TestCalculateMRRCacheDisabled(t *testing.T) {
	clk := clock.NewFakeClock(testNow)
	source := &fakeSource{subscriptions: []domain.SubscriptionRecord{monthlySub("sub_1", 10000, testNow.AddDate(0, -1, 0))}}
	svc := newService(Params{
		DataSource: source,
		Cache:      cache.NewMRRCache(0, clk),
		Clock:      clk,
		Log:        zap.NewNop(),
	})

	for i := 0; i < 3; i++ {
		_, err := svc.CalculateMRR(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, source.listCallsFor(nil))
}

func TestCalculateMRRDataSourceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockDataSource(ctrl)
	cause := errors.New("stripe unavailable")

	source.EXPECT().
		ListSubscriptions(gomock.Any(), gomock.Any()).
		Return(domain.SubscriptionPage{}, cause).
		Times(1)

	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	_, err := svc.CalculateMRR(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataSource)
	assert.ErrorIs(t, err, cause)

	var dsErr *domain.DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "list_subscriptions", dsErr.Op)
}

func TestCalculateMRRMissingPageToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockDataSource(ctrl)

	source.EXPECT().
		ListSubscriptions(gomock.Any(), gomock.Any()).
		Return(domain.SubscriptionPage{
			Data:     []domain.SubscriptionRecord{monthlySub("sub_1", 100, testNow)},
			PageInfo: pagination.PageInfo{HasMore: true},
		}, nil)

	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	_, err := svc.CalculateMRR(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrMissingPageToken)
}

func TestCalculateChurnRate(t *testing.T) {
	start := testNow.Add(-30 * 24 * time.Hour)
	canceledAt := testNow.Add(-24 * time.Hour)
	canceledBefore := start.Add(-time.Hour)

	subs := []domain.SubscriptionRecord{
		monthlySub("sub_a1", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_a2", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_a3", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_new", 100, testNow.Add(-72*time.Hour)),
		{ID: "sub_c1", Status: domain.SubscriptionStatusCanceled, Created: start.Add(-96 * time.Hour), CanceledAt: &canceledAt},
		{ID: "sub_c_old", Status: domain.SubscriptionStatusCanceled, Created: start.Add(-96 * time.Hour), CanceledAt: &canceledBefore},
	}
	source := &fakeSource{subscriptions: subs}
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	rate, err := svc.CalculateChurnRate(context.Background())
	require.NoError(t, err)

	// 1 canceled / (3 active at start + 1 created in window)
	assert.InDelta(t, 25.0, rate, 1e-9)
	assert.Equal(t, []string{
		"status:'active' AND created<1770991200",
		"status:'canceled' AND canceled_at>1770991200 AND canceled_at<1773583200",
		"created>1770991200 AND created<1773583200",
	}, source.subscriptionCounts)
}

func TestCalculateChurnRateFloorsSubSecondNow(t *testing.T) {
	now := testNow.Add(999 * time.Millisecond)
	start := testNow.Add(-30 * 24 * time.Hour)
	canceledAt := testNow.Add(-24 * time.Hour)

	subs := []domain.SubscriptionRecord{
		monthlySub("sub_a1", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_a2", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_a3", 100, start.Add(-48*time.Hour)),
		monthlySub("sub_new", 100, testNow.Add(-72*time.Hour)),
		// same second as the window start: neither before nor inside it
		monthlySub("sub_edge", 100, start.Add(400*time.Millisecond)),
		{ID: "sub_c1", Status: domain.SubscriptionStatusCanceled, Created: start.Add(-96 * time.Hour), CanceledAt: &canceledAt},
	}
	source := &fakeSource{subscriptions: subs}
	svc := newTestService(t, source, clock.NewFakeClock(now), Config{})

	rate, err := svc.CalculateChurnRate(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 25.0, rate, 1e-9)
	assert.Equal(t, []string{
		"status:'active' AND created<1770991200",
		"status:'canceled' AND canceled_at>1770991200 AND canceled_at<1773583200",
		"created>1770991200 AND created<1773583200",
	}, source.subscriptionCounts)
}

func TestCalculateChurnRateZeroDenominator(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, clock.NewFakeClock(testNow), Config{})

	rate, err := svc.CalculateChurnRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestCountNewCustomersMonthBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	monthStart := time.Date(2026, 3, 1, 0, 0, 0, 0, loc)

	source := &fakeSource{customers: []domain.CustomerRecord{
		{ID: "cus_first_instant", Created: monthStart},
		{ID: "cus_mid_month", Created: now.Add(-24 * time.Hour)},
		{ID: "cus_last_month", Created: monthStart.Add(-time.Second)},
		{ID: "cus_future", Created: now.Add(time.Hour)},
	}}
	svc := newTestService(t, source, clock.NewFakeClock(now), Config{Location: loc})

	count, err := svc.CountNewCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, source.customerCounts, 1)
	assert.Contains(t, source.customerCounts[0], "created>=")
	assert.Contains(t, source.customerCounts[0], "created<=")
}

func TestCalculateGrowthRate(t *testing.T) {
	previousAt := testNow.Add(-30 * 24 * time.Hour)

	t.Run("relative to previous month", func(t *testing.T) {
		source := &fakeSource{subscriptions: []domain.SubscriptionRecord{
			monthlySub("sub_old", 10000, previousAt.Add(-time.Hour)),
			monthlySub("sub_new", 2500, testNow.Add(-time.Hour)),
		}}
		svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

		rate, err := svc.CalculateGrowthRate(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 25.0, rate, 1e-9)
	})

	t.Run("zero previous yields zero", func(t *testing.T) {
		source := &fakeSource{subscriptions: []domain.SubscriptionRecord{
			monthlySub("sub_new", 2500, testNow.Add(-time.Hour)),
		}}
		svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

		rate, err := svc.CalculateGrowthRate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.0, rate)
	})
}

func TestComputeMetrics(t *testing.T) {
	previousAt := testNow.Add(-30 * 24 * time.Hour)
	source := &fakeSource{
		subscriptions: []domain.SubscriptionRecord{
			monthlySub("sub_old", 10000, previousAt.Add(-time.Hour)),
			monthlySub("sub_new", 10000, testNow.Add(-time.Hour)),
		},
		customers: []domain.CustomerRecord{{ID: "cus_1", Created: testNow.Add(-time.Hour)}},
	}
	clk := clock.NewFakeClock(testNow)
	svc := newTestService(t, source, clk, Config{IncludeGrowth: true})

	snapshot, err := svc.ComputeDailyMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "200.00", snapshot.MonthlyRecurringRevenue.StringFixed(2))
	assert.Equal(t, int64(1), snapshot.NewCustomerCount)
	assert.Equal(t, 0.0, snapshot.ChurnRatePercent)
	require.NotNil(t, snapshot.MRRGrowthRatePercent)
	assert.InDelta(t, 100.0, *snapshot.MRRGrowthRatePercent, 1e-9)
	assert.True(t, snapshot.ComputedAt.Equal(testNow))

	// MRR and growth share the "current" computation.
	assert.Equal(t, 1, source.listCallsFor(nil))
	assert.Equal(t, 1, source.listCallsFor(&previousAt))
}

func TestComputeMetricsWithoutGrowth(t *testing.T) {
	source := &fakeSource{subscriptions: []domain.SubscriptionRecord{monthlySub("sub_1", 10000, testNow.AddDate(0, -2, 0))}}
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	snapshot, err := svc.ComputeMetrics(context.Background(), domain.ComputeOptions{})
	require.NoError(t, err)
	assert.Nil(t, snapshot.MRRGrowthRatePercent)
	assert.Len(t, source.listCalls, 1)
}

func TestComputeMetricsFailure(t *testing.T) {
	cause := errors.New("search unavailable")
	source := &fakeSource{countErr: cause}
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	snapshot, err := svc.ComputeMetrics(context.Background(), domain.ComputeOptions{IncludeGrowth: true})
	require.Error(t, err)
	assert.Equal(t, domain.Snapshot{}, snapshot)
	assert.ErrorIs(t, err, domain.ErrMetricsComputation)
	assert.ErrorIs(t, err, domain.ErrDataSource)

	var mcErr *domain.MetricsComputationError
	require.ErrorAs(t, err, &mcErr)
	assert.Contains(t, []string{domain.MetricChurnRate, domain.MetricNewCustomers}, mcErr.Metric)
}

func TestCalculateMRRSharedRecomputeSurvivesCanceledCaller(t *testing.T) {
	source := newGatedSource(&fakeSource{subscriptions: []domain.SubscriptionRecord{
		monthlySub("sub_1", 10000, testNow.AddDate(0, -1, 0)),
	}})
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.CalculateMRR(ctxA, nil)
		errA <- err
	}()

	select {
	case <-source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("recompute never reached the data source")
	}

	type outcome struct {
		amount decimal.Decimal
		err    error
	}
	resB := make(chan outcome, 1)
	go func() {
		amount, err := svc.CalculateMRR(context.Background(), nil)
		resB <- outcome{amount, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrDataSource)
	case <-time.After(5 * time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	close(source.release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, "100.00", res.amount.StringFixed(2))
	case <-time.After(5 * time.Second):
		t.Fatal("live caller never got a result")
	}
	assert.Equal(t, 1, source.listCallsFor(nil))

	cached, ok := svc.cache.Get(cache.CurrentKey)
	require.True(t, ok)
	assert.Equal(t, "100.00", cached.StringFixed(2))
}

func TestCalculateMRRRecomputeTimeout(t *testing.T) {
	source := newGatedSource(&fakeSource{})
	svc := newTestService(t, source, clock.NewFakeClock(testNow), Config{RecomputeTimeout: 20 * time.Millisecond})

	_, err := svc.CalculateMRR(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrDataSource)
}

func TestComputeDailyMetricsFollowsReportConfig(t *testing.T) {
	source := &fakeSource{subscriptions: []domain.SubscriptionRecord{monthlySub("sub_1", 10000, testNow.AddDate(0, -2, 0))}}
	clk := clock.NewFakeClock(testNow)

	reportCfg := config.DefaultReportConfig()
	reportCfg.IncludeGrowth = false
	holder := config.NewStaticReportConfigHolder(reportCfg)

	svc := newService(Params{
		DataSource: source,
		Cache:      cache.NewMRRCache(time.Hour, clk),
		Clock:      clk,
		Log:        zap.NewNop(),
		Config:     Config{IncludeGrowth: true},
		Reports:    holder,
	})

	snapshot, err := svc.ComputeDailyMetrics(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot.MRRGrowthRatePercent)

	reportCfg.IncludeGrowth = true
	require.NoError(t, holder.Replace(reportCfg))

	snapshot, err = svc.ComputeDailyMetrics(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snapshot.MRRGrowthRatePercent)
}
