package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
)

type fakeStripe struct {
	mu       sync.Mutex
	requests []*http.Request
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	f.handler(w, r)
}

func newTestSource(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Source, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewSource(NewClient("sk_test_123", srv.URL), zap.NewNop(), nil), fake
}

func subscriptionJSON(id string, created int64) map[string]any {
	return map[string]any{
		"id":      id,
		"object":  "subscription",
		"status":  "active",
		"created": created,
		"items": map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":       "si_" + id,
				"object":   "subscription_item",
				"quantity": 1,
				"price": map[string]any{
					"id":          "price_1",
					"object":      "price",
					"unit_amount": 1000,
					"recurring":   map[string]any{"interval": "month", "interval_count": 1},
				},
			}},
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, body any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestListSubscriptionsPaginates(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	src, fake := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		if r.URL.Query().Get("starting_after") == "" {
			writeJSON(t, w, map[string]any{
				"object":   "list",
				"url":      "/v1/subscriptions",
				"has_more": true,
				"data":     []any{subscriptionJSON("sub_1", 1767225600), subscriptionJSON("sub_2", 1767225700)},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"object":   "list",
			"url":      "/v1/subscriptions",
			"has_more": false,
			"data":     []any{subscriptionJSON("sub_3", 1767225800)},
		})
	})

	first, err := src.ListSubscriptions(context.Background(), domain.ListSubscriptionsRequest{CreatedLTE: &cutoff, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	assert.True(t, first.PageInfo.HasMore)
	assert.Equal(t, "sub_2", first.PageInfo.NextPageToken)

	second, err := src.ListSubscriptions(context.Background(), domain.ListSubscriptionsRequest{
		CreatedLTE: &cutoff,
		PageSize:   2,
		PageToken:  first.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
	assert.False(t, second.PageInfo.HasMore)

	require.Len(t, fake.requests, 2)
	query := fake.requests[0].URL.Query()
	assert.Equal(t, "2", query.Get("limit"))
	assert.Equal(t, strconv.FormatInt(cutoff.Unix(), 10), query.Get("created[lte]"))
	assert.Equal(t, "sub_2", fake.requests[1].URL.Query().Get("starting_after"))
	assert.Equal(t, "Bearer sk_test_123", fake.requests[0].Header.Get("Authorization"))
}

func TestCountSubscriptionsDrainsSearchPages(t *testing.T) {
	query := domain.And(domain.StatusIs(domain.SubscriptionStatusActive), domain.Created(domain.OpLess, time.Unix(1770991200, 0)))

	src, fake := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/search", r.URL.Path)
		if r.URL.Query().Get("page") == "" {
			writeJSON(t, w, map[string]any{
				"object":    "search_result",
				"url":       "/v1/subscriptions/search",
				"has_more":  true,
				"next_page": "page_2",
				"data":      []any{subscriptionJSON("sub_1", 1), subscriptionJSON("sub_2", 2)},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"object":   "search_result",
			"url":      "/v1/subscriptions/search",
			"has_more": false,
			"data":     []any{subscriptionJSON("sub_3", 3)},
		})
	})

	count, err := src.CountSubscriptions(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.Len(t, fake.requests, 2)
	assert.Equal(t, "status:'active' AND created<1770991200", fake.requests[0].URL.Query().Get("query"))
	assert.Equal(t, "page_2", fake.requests[1].URL.Query().Get("page"))
}

func TestCountCustomers(t *testing.T) {
	src, fake := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/search", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"object":   "search_result",
			"url":      "/v1/customers/search",
			"has_more": false,
			"data": []any{
				map[string]any{"id": "cus_1", "object": "customer", "created": 1772323200},
				map[string]any{"id": "cus_2", "object": "customer", "created": 1772409600},
			},
		})
	})

	count, err := src.CountCustomers(context.Background(), domain.And(domain.Created(domain.OpGreaterOrEqual, time.Unix(1772323200, 0))))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "created>=1772323200", fake.requests[0].URL.Query().Get("query"))
}

func TestListSubscriptionsAPIError(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "Invalid API Key provided"},
		})
	})

	_, err := src.ListSubscriptions(context.Background(), domain.ListSubscriptionsRequest{})
	require.Error(t, err)

	var stripeErr *stripego.Error
	require.ErrorAs(t, err, &stripeErr)
	assert.Equal(t, http.StatusUnauthorized, stripeErr.HTTPStatusCode)
}

func TestToRecord(t *testing.T) {
	sub := &stripego.Subscription{
		ID:         "sub_1",
		Status:     stripego.SubscriptionStatusCanceled,
		Created:    1767225600,
		CanceledAt: 1772323200,
		Items: &stripego.SubscriptionItemList{
			Data: []*stripego.SubscriptionItem{{
				Quantity: 3,
				Price: &stripego.Price{
					UnitAmount: 30000,
					Recurring: &stripego.PriceRecurring{
						Interval:      stripego.PriceRecurringIntervalMonth,
						IntervalCount: 3,
					},
				},
			}},
		},
		Discount: &stripego.Discount{Coupon: &stripego.Coupon{
			AmountOff:        2000,
			Duration:         stripego.CouponDurationRepeating,
			DurationInMonths: 4,
		}},
		DefaultTaxRates: []*stripego.TaxRate{{Percentage: 10}, {Percentage: 5}},
	}

	record := toRecord(sub)

	assert.Equal(t, "sub_1", record.ID)
	assert.Equal(t, domain.SubscriptionStatusCanceled, record.Status)
	assert.Equal(t, int64(30000), record.Amount)
	assert.Equal(t, int64(3), record.Quantity)
	assert.Equal(t, domain.IntervalMonth, record.Interval)
	assert.Equal(t, int64(3), record.IntervalCount)
	require.NotNil(t, record.CanceledAt)
	assert.Equal(t, int64(1772323200), record.CanceledAt.Unix())
	require.NotNil(t, record.Discount)
	assert.Equal(t, domain.DiscountDurationRepeating, record.Discount.Duration)
	assert.Equal(t, int64(4), record.Discount.DurationInMonths)
	assert.Equal(t, []float64{10, 5}, record.TaxRates)
}

func TestToRecordPlanFallbackAndDefaults(t *testing.T) {
	sub := &stripego.Subscription{
		ID:      "sub_2",
		Status:  stripego.SubscriptionStatusActive,
		Created: 1767225600,
		Items: &stripego.SubscriptionItemList{
			Data: []*stripego.SubscriptionItem{{
				Plan: &stripego.Plan{Amount: 120000, Interval: stripego.PlanIntervalYear},
			}},
		},
	}

	record := toRecord(sub)

	assert.Equal(t, int64(120000), record.Amount)
	assert.Equal(t, domain.IntervalYear, record.Interval)
	assert.Equal(t, int64(1), record.IntervalCount)
	assert.Equal(t, int64(1), record.Quantity)
	assert.Nil(t, record.CanceledAt)
	assert.Nil(t, record.Discount)
}
