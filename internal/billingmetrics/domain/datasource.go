package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/revenuepulse/pkg/pagination"
)

const DefaultPageSize = 100

// ListSubscriptionsRequest selects the provider's default subscription set
// (everything except canceled), optionally limited to records created at or
// before CreatedLTE.
type ListSubscriptionsRequest struct {
	CreatedLTE *time.Time
	PageSize   int
	PageToken  string
}

type SubscriptionPage struct {
	Data     []SubscriptionRecord
	PageInfo pagination.PageInfo
}

//go:generate mockgen -source=datasource.go -destination=./mocks/mock_datasource.go -package=mocks

// DataSource is the billing provider seen by the metrics engine.
type DataSource interface {
	// ListSubscriptions returns a single page; callers follow NextPageToken
	// until HasMore is false.
	ListSubscriptions(ctx context.Context, req ListSubscriptionsRequest) (SubscriptionPage, error)
	// CountSubscriptions returns the number of subscriptions matching query
	// across all result pages.
	CountSubscriptions(ctx context.Context, query Query) (int64, error)
	CountCustomers(ctx context.Context, query Query) (int64, error)
}
