package stripe

import (
	"context"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	obslogger "github.com/smallbiznis/revenuepulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/observability/tracing"
	"github.com/smallbiznis/revenuepulse/pkg/pagination"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	providerName = "stripe"
	maxPageSize  = 100

	opListSubscriptions  = "list_subscriptions"
	opCountSubscriptions = "search_subscriptions"
	opCountCustomers     = "search_customers"
)

// Source reads subscriptions and customers from the Stripe API. Every call is
// a single attempt; retries are left to the next scheduled run.
type Source struct {
	api     *client.API
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

func NewSource(api *client.API, log *zap.Logger, metrics *obsmetrics.Metrics) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		api:     api,
		log:     log.Named("datasource.stripe"),
		metrics: metrics,
		tracer:  otel.Tracer("revenuepulse/datasource/stripe"),
	}
}

func (s *Source) ListSubscriptions(ctx context.Context, req domain.ListSubscriptionsRequest) (page domain.SubscriptionPage, err error) {
	ctx, span := s.tracer.Start(ctx, "stripe.ListSubscriptions", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { s.finish(ctx, span, opListSubscriptions, err) }()

	limit := req.PageSize
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := &stripego.SubscriptionListParams{}
	params.Context = ctx
	params.Limit = stripego.Int64(int64(limit))
	params.Single = true
	if req.PageToken != "" {
		params.StartingAfter = stripego.String(req.PageToken)
	}
	if req.CreatedLTE != nil {
		params.CreatedRange = &stripego.RangeQueryParams{LesserThanOrEqual: req.CreatedLTE.Unix()}
		span.SetAttributes(attribute.Int64("stripe.created_lte", req.CreatedLTE.Unix()))
	}

	iter := s.api.Subscriptions.List(params)
	records := make([]domain.SubscriptionRecord, 0, limit)
	for iter.Next() {
		records = append(records, toRecord(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return domain.SubscriptionPage{}, err
	}

	info := pagination.PageInfo{}
	if meta := iter.Meta(); meta != nil && meta.HasMore && len(records) > 0 {
		info.HasMore = true
		info.NextPageToken = records[len(records)-1].ID
	}
	span.SetAttributes(
		attribute.Int("stripe.page_records", len(records)),
		attribute.Bool("stripe.has_more", info.HasMore),
	)

	return domain.SubscriptionPage{Data: records, PageInfo: info}, nil
}

// CountSubscriptions drains every search page for query.
func (s *Source) CountSubscriptions(ctx context.Context, query domain.Query) (count int64, err error) {
	ctx, span := s.tracer.Start(ctx, "stripe.SearchSubscriptions", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { s.finish(ctx, span, opCountSubscriptions, err) }()

	params := &stripego.SubscriptionSearchParams{}
	params.Context = ctx
	params.Query = query.String()
	params.Limit = stripego.Int64(maxPageSize)
	span.SetAttributes(attribute.String("stripe.query", params.Query))

	iter := s.api.Subscriptions.Search(params)
	for iter.Next() {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("stripe.count", count))
	return count, nil
}

func (s *Source) CountCustomers(ctx context.Context, query domain.Query) (count int64, err error) {
	ctx, span := s.tracer.Start(ctx, "stripe.SearchCustomers", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { s.finish(ctx, span, opCountCustomers, err) }()

	params := &stripego.CustomerSearchParams{}
	params.Context = ctx
	params.Query = query.String()
	params.Limit = stripego.Int64(maxPageSize)
	span.SetAttributes(attribute.String("stripe.query", params.Query))

	iter := s.api.Customers.Search(params)
	for iter.Next() {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("stripe.count", count))
	return count, nil
}

func (s *Source) finish(ctx context.Context, span trace.Span, op string, err error) {
	s.metrics.RecordDataSourceRequest(ctx, providerName, op, err)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, op+" failed")
		obslogger.WithContext(ctx, s.log).Warn("stripe request failed", zap.String("operation", op), zap.Error(err))
	}
	span.End()
}

// toRecord maps a Stripe subscription onto the engine's record. Billing
// terms come from the first item's price, falling back to its plan.
func toRecord(sub *stripego.Subscription) domain.SubscriptionRecord {
	record := domain.SubscriptionRecord{
		ID:       sub.ID,
		Status:   domain.SubscriptionStatus(sub.Status),
		Created:  time.Unix(sub.Created, 0).UTC(),
		Quantity: 1,
	}
	if sub.CanceledAt > 0 {
		canceledAt := time.Unix(sub.CanceledAt, 0).UTC()
		record.CanceledAt = &canceledAt
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Quantity > 0 {
			record.Quantity = item.Quantity
		}
		switch {
		case item.Price != nil && item.Price.Recurring != nil:
			record.Amount = item.Price.UnitAmount
			record.Interval = domain.Interval(item.Price.Recurring.Interval)
			record.IntervalCount = item.Price.Recurring.IntervalCount
		case item.Plan != nil:
			record.Amount = item.Plan.Amount
			record.Interval = domain.Interval(item.Plan.Interval)
			record.IntervalCount = item.Plan.IntervalCount
		}
	}
	if record.IntervalCount <= 0 {
		record.IntervalCount = 1
	}

	if sub.Discount != nil && sub.Discount.Coupon != nil {
		coupon := sub.Discount.Coupon
		record.Discount = &domain.Discount{
			PercentOff:       coupon.PercentOff,
			AmountOff:        coupon.AmountOff,
			Duration:         domain.DiscountDuration(coupon.Duration),
			DurationInMonths: coupon.DurationInMonths,
		}
	}

	for _, rate := range sub.DefaultTaxRates {
		if rate == nil {
			continue
		}
		record.TaxRates = append(record.TaxRates, rate.Percentage)
	}

	return record
}
