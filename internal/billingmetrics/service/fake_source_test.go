package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/smallbiznis/revenuepulse/pkg/pagination"
)

// fakeSource evaluates queries against in-memory records the way the
// provider would and records every call.
type fakeSource struct {
	mu sync.Mutex

	subscriptions []domain.SubscriptionRecord
	customers     []domain.CustomerRecord

	listErr  error
	countErr error

	listCalls          []domain.ListSubscriptionsRequest
	subscriptionCounts []string
	customerCounts     []string
}

func (f *fakeSource) ListSubscriptions(_ context.Context, req domain.ListSubscriptionsRequest) (domain.SubscriptionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, req)
	if f.listErr != nil {
		return domain.SubscriptionPage{}, f.listErr
	}

	filtered := make([]domain.SubscriptionRecord, 0, len(f.subscriptions))
	for _, sub := range f.subscriptions {
		if sub.Status == domain.SubscriptionStatusCanceled {
			continue
		}
		if req.CreatedLTE != nil && sub.Created.Unix() > req.CreatedLTE.Unix() {
			continue
		}
		filtered = append(filtered, sub)
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.SubscriptionPage{}, err
	}
	data, pageInfo, err := pagination.BuildOffsetPageInfo(filtered, cursor.Offset, req.PageSize)
	if err != nil {
		return domain.SubscriptionPage{}, err
	}
	return domain.SubscriptionPage{Data: data, PageInfo: pageInfo}, nil
}

func (f *fakeSource) CountSubscriptions(_ context.Context, query domain.Query) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptionCounts = append(f.subscriptionCounts, query.String())
	if f.countErr != nil {
		return 0, f.countErr
	}
	var count int64
	for _, sub := range f.subscriptions {
		if query.Match(sub.Fields()) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSource) CountCustomers(_ context.Context, query domain.Query) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.customerCounts = append(f.customerCounts, query.String())
	if f.countErr != nil {
		return 0, f.countErr
	}
	var count int64
	for _, customer := range f.customers {
		if query.Match(customer.Fields()) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSource) listCallsFor(asOf *time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := 0
	for _, req := range f.listCalls {
		switch {
		case asOf == nil && req.CreatedLTE == nil:
			calls++
		case asOf != nil && req.CreatedLTE != nil && req.CreatedLTE.Equal(*asOf):
			calls++
		}
	}
	return calls
}

func monthlySub(id string, amount int64, created time.Time) domain.SubscriptionRecord {
	return domain.SubscriptionRecord{
		ID:            id,
		Status:        domain.SubscriptionStatusActive,
		Created:       created,
		Amount:        amount,
		Quantity:      1,
		Interval:      domain.IntervalMonth,
		IntervalCount: 1,
	}
}

func manySubs(n int, amount int64, created time.Time) []domain.SubscriptionRecord {
	subs := make([]domain.SubscriptionRecord, 0, n)
	for i := 0; i < n; i++ {
		subs = append(subs, monthlySub(fmt.Sprintf("sub_%03d", i), amount, created))
	}
	return subs
}

// gatedSource holds every ListSubscriptions call until release is closed or
// the call's context ends.
type gatedSource struct {
	*fakeSource

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSource(inner *fakeSource) *gatedSource {
	return &gatedSource{
		fakeSource: inner,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (g *gatedSource) ListSubscriptions(ctx context.Context, req domain.ListSubscriptionsRequest) (domain.SubscriptionPage, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return domain.SubscriptionPage{}, ctx.Err()
	}
	return g.fakeSource.ListSubscriptions(ctx, req)
}
