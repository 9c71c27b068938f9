package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"go.uber.org/zap"
)

var (
	hundred      = decimal.NewFromInt(100)
	twelve       = decimal.NewFromInt(12)
	weeksPerYear = decimal.NewFromInt(52)
	daysPerYear  = decimal.NewFromInt(365)
)

// contribution is one subscription's monthly revenue in major units:
// normalized to a month, multiplied by quantity, discounted, then taxed.
func (s *Service) contribution(ctx context.Context, sub domain.SubscriptionRecord) decimal.Decimal {
	monthly, known := normalizeMonthly(sub)
	if !known {
		s.log.Warn("unknown billing interval treated as monthly",
			zap.String("subscription_id", sub.ID),
			zap.String("interval", string(sub.Interval)),
		)
		s.metrics.RecordUnknownInterval(ctx, string(sub.Interval))
	}

	amount := monthly.Mul(decimal.NewFromInt(quantityOf(sub)))
	amount = applyDiscount(amount, sub.Discount)
	amount = applyTax(amount, sub.TaxRates)
	return amount.Div(hundred)
}

// normalizeMonthly converts the billed amount to a monthly minor-unit amount.
// Interval counts other than on monthly plans are ignored.
func normalizeMonthly(sub domain.SubscriptionRecord) (decimal.Decimal, bool) {
	base := decimal.NewFromInt(sub.Amount)

	switch sub.Interval {
	case domain.IntervalYear:
		return base.Div(twelve), true
	case domain.IntervalWeek:
		return base.Mul(weeksPerYear).Div(twelve), true
	case domain.IntervalDay:
		return base.Mul(daysPerYear).Div(twelve), true
	case domain.IntervalMonth:
		if count := sub.IntervalCount; count > 1 {
			return base.Div(decimal.NewFromInt(count)), true
		}
		return base, true
	default:
		return base, false
	}
}

func quantityOf(sub domain.SubscriptionRecord) int64 {
	if sub.Quantity <= 0 {
		return 1
	}
	return sub.Quantity
}

func applyDiscount(amount decimal.Decimal, discount *domain.Discount) decimal.Decimal {
	if discount == nil {
		return amount
	}

	if discount.PercentOff > 0 {
		factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discount.PercentOff).Div(hundred))
		return amount.Mul(factor)
	}

	if discount.AmountOff > 0 {
		off := decimal.NewFromInt(discount.AmountOff)
		if discount.Duration == domain.DiscountDurationRepeating && discount.DurationInMonths > 0 {
			off = off.Div(decimal.NewFromInt(discount.DurationInMonths))
		}
		reduced := amount.Sub(off)
		if reduced.IsNegative() {
			return decimal.Zero
		}
		return reduced
	}

	return amount
}

// applyTax applies the first tax rate only.
func applyTax(amount decimal.Decimal, rates []float64) decimal.Decimal {
	if len(rates) == 0 {
		return amount
	}
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(rates[0]).Div(hundred))
	return amount.Mul(factor)
}
