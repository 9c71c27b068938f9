package memory

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Subscriptions []subscriptionFixture `yaml:"subscriptions"`
	Customers     []customerFixture     `yaml:"customers"`
}

type subscriptionFixture struct {
	ID            string           `yaml:"id"`
	Status        string           `yaml:"status"`
	Created       time.Time        `yaml:"created"`
	CanceledAt    *time.Time       `yaml:"canceled_at"`
	Amount        int64            `yaml:"amount"`
	Quantity      int64            `yaml:"quantity"`
	Interval      string           `yaml:"interval"`
	IntervalCount int64            `yaml:"interval_count"`
	Discount      *discountFixture `yaml:"discount"`
	TaxRates      []float64        `yaml:"tax_rates"`
}

type discountFixture struct {
	PercentOff       float64 `yaml:"percent_off"`
	AmountOff        int64   `yaml:"amount_off"`
	Duration         string  `yaml:"duration"`
	DurationInMonths int64   `yaml:"duration_in_months"`
}

type customerFixture struct {
	ID      string    `yaml:"id"`
	Created time.Time `yaml:"created"`
}

// LoadFile reads a YAML fixture file into a Source.
func LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML fixtures of the form:
//
//	subscriptions:
//	  - id: sub_1
//	    status: active
//	    created: 2026-01-05T10:00:00Z
//	    amount: 4900
//	    interval: month
//	customers:
//	  - id: cus_1
//	    created: 2026-01-05T10:00:00Z
func Parse(data []byte) (*Source, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	subs := make([]domain.SubscriptionRecord, 0, len(file.Subscriptions))
	for i, f := range file.Subscriptions {
		if strings.TrimSpace(f.ID) == "" {
			return nil, fmt.Errorf("subscriptions[%d]: id is required", i)
		}
		if f.Created.IsZero() {
			return nil, fmt.Errorf("subscription %s: created is required", f.ID)
		}
		sub := domain.SubscriptionRecord{
			ID:            f.ID,
			Status:        domain.SubscriptionStatus(strings.ToLower(strings.TrimSpace(f.Status))),
			Created:       f.Created,
			CanceledAt:    f.CanceledAt,
			Amount:        f.Amount,
			Quantity:      f.Quantity,
			Interval:      domain.Interval(strings.ToLower(strings.TrimSpace(f.Interval))),
			IntervalCount: f.IntervalCount,
			TaxRates:      f.TaxRates,
		}
		if sub.Status == "" {
			sub.Status = domain.SubscriptionStatusActive
		}
		if f.Discount != nil {
			sub.Discount = &domain.Discount{
				PercentOff:       f.Discount.PercentOff,
				AmountOff:        f.Discount.AmountOff,
				Duration:         domain.DiscountDuration(f.Discount.Duration),
				DurationInMonths: f.Discount.DurationInMonths,
			}
		}
		subs = append(subs, sub)
	}

	customers := make([]domain.CustomerRecord, 0, len(file.Customers))
	for i, f := range file.Customers {
		if strings.TrimSpace(f.ID) == "" {
			return nil, fmt.Errorf("customers[%d]: id is required", i)
		}
		customers = append(customers, domain.CustomerRecord{ID: f.ID, Created: f.Created})
	}

	return NewSource(subs, customers), nil
}
