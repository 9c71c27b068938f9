package domain

import "context"

// Sink delivers a report to one destination. Deliver either succeeds or
// returns an error; it never retries.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, report Report) error
}
