package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyReportDelivery = "revenuepulse:report:%s"
	keyManualRun      = "revenuepulse:report:manual"

	// DefaultDeliveryLockTTL keeps a day's report claimed until shortly before
	// the next day's run.
	DefaultDeliveryLockTTL = 23 * time.Hour
)

// manualRuns allows three on-demand reports, then one per minute.
var manualRuns = Bucket{Capacity: 3, Refill: time.Minute}

// ReportLimiter guards report delivery across replicas and throttles
// on-demand runs. A limiter without Redis allows everything.
type ReportLimiter struct {
	enabled bool

	bucket  *TokenBucket
	locker  *Locker
	lockTTL time.Duration
}

func NewReportLimiter(client redis.UniversalClient) *ReportLimiter {
	if client == nil {
		return &ReportLimiter{}
	}
	return &ReportLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		lockTTL: DefaultDeliveryLockTTL,
	}
}

func (l *ReportLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// TryLockReport claims delivery of the report for date (YYYY-MM-DD). The
// returned token releases the claim.
func (l *ReportLimiter) TryLockReport(ctx context.Context, date string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	lease, err := l.locker.Acquire(ctx, reportKey(date), l.lockTTL)
	switch {
	case errors.Is(err, ErrLockHeld):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return lease.Token, true, nil
}

func (l *ReportLimiter) ReleaseReport(ctx context.Context, date, token string) error {
	if !l.Enabled() {
		return nil
	}
	_, err := l.locker.Release(ctx, Lease{Key: reportKey(date), Token: token})
	return err
}

func (l *ReportLimiter) AllowManualRun(ctx context.Context) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyManualRun, manualRuns)
}

func reportKey(date string) string {
	return fmt.Sprintf(keyReportDelivery, strings.TrimSpace(date))
}
