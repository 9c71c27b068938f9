package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

type DiscountDuration string

const (
	DiscountDurationOnce      DiscountDuration = "once"
	DiscountDurationForever   DiscountDuration = "forever"
	DiscountDurationRepeating DiscountDuration = "repeating"
)

// Discount is a coupon applied to a subscription. Only one of PercentOff or
// AmountOff is expected to be set; PercentOff wins when both are.
type Discount struct {
	PercentOff       float64
	AmountOff        int64
	Duration         DiscountDuration
	DurationInMonths int64
}

// SubscriptionRecord is the provider's view of one subscription. Amount and
// AmountOff are in minor currency units.
type SubscriptionRecord struct {
	ID            string
	Status        SubscriptionStatus
	Created       time.Time
	CanceledAt    *time.Time
	Amount        int64
	Quantity      int64
	Interval      Interval
	IntervalCount int64
	Discount      *Discount
	TaxRates      []float64
}

type CustomerRecord struct {
	ID      string
	Created time.Time
}

// Snapshot is the result of one metrics run. It is never mutated after
// ComputeMetrics returns it.
type Snapshot struct {
	MonthlyRecurringRevenue decimal.Decimal `json:"monthly_recurring_revenue"`
	ChurnRatePercent        float64         `json:"churn_rate_percent"`
	MRRGrowthRatePercent    *float64        `json:"mrr_growth_rate_percent,omitempty"`
	NewCustomerCount        int64           `json:"new_customer_count"`
	ComputedAt              time.Time       `json:"computed_at"`
}

// ComputeOptions selects the report variant.
type ComputeOptions struct {
	IncludeGrowth bool
}

const (
	MetricMRR          = "mrr"
	MetricChurnRate    = "churn_rate"
	MetricNewCustomers = "new_customers"
	MetricGrowthRate   = "mrr_growth_rate"
)
