package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/pkg/pagination"
)

const maxPageSize = 100

// Source is an in-process DataSource that mirrors the provider's listing and
// search semantics over a fixed record set.
type Source struct {
	mu            sync.RWMutex
	subscriptions []domain.SubscriptionRecord
	customers     []domain.CustomerRecord
}

func NewSource(subs []domain.SubscriptionRecord, customers []domain.CustomerRecord) *Source {
	s := &Source{}
	s.Replace(subs, customers)
	return s
}

// Replace swaps the record set. Records are kept newest first, matching the
// provider's default list order.
func (s *Source) Replace(subs []domain.SubscriptionRecord, customers []domain.CustomerRecord) {
	subsCopy := append([]domain.SubscriptionRecord(nil), subs...)
	sort.SliceStable(subsCopy, func(i, j int) bool {
		return subsCopy[i].Created.After(subsCopy[j].Created)
	})
	customersCopy := append([]domain.CustomerRecord(nil), customers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = subsCopy
	s.customers = customersCopy
}

// ListSubscriptions returns every subscription except canceled ones, the
// provider's default listing.
func (s *Source) ListSubscriptions(ctx context.Context, req domain.ListSubscriptionsRequest) (domain.SubscriptionPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.SubscriptionPage{}, err
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.SubscriptionPage{}, err
	}

	limit := req.PageSize
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	s.mu.RLock()
	filtered := make([]domain.SubscriptionRecord, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if sub.Status == domain.SubscriptionStatusCanceled {
			continue
		}
		if req.CreatedLTE != nil && sub.Created.Unix() > req.CreatedLTE.Unix() {
			continue
		}
		filtered = append(filtered, sub)
	}
	s.mu.RUnlock()

	data, pageInfo, err := pagination.BuildOffsetPageInfo(filtered, cursor.Offset, limit)
	if err != nil {
		return domain.SubscriptionPage{}, err
	}
	return domain.SubscriptionPage{Data: data, PageInfo: pageInfo}, nil
}

func (s *Source) CountSubscriptions(ctx context.Context, query domain.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, sub := range s.subscriptions {
		if query.Match(sub.Fields()) {
			count++
		}
	}
	return count, nil
}

func (s *Source) CountCustomers(ctx context.Context, query domain.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, customer := range s.customers {
		if query.Match(customer.Fields()) {
			count++
		}
	}
	return count, nil
}
