// Package correlation carries request and report-run identifiers on a
// context so logs and spans can be joined.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type key uint8

const (
	requestIDKey key = iota
	runIDKey
)

func with(ctx context.Context, k key, id string) context.Context {
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, k, id)
}

func get(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(k).(string)
	return id
}

func RequestID(ctx context.Context) string { return get(ctx, requestIDKey) }

func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

// EnsureRequestID returns ctx with a request ID, minting a ULID if none is set.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return with(ctx, requestIDKey, id), id
}

func RunID(ctx context.Context) string { return get(ctx, runIDKey) }

func WithRunID(ctx context.Context, id string) context.Context {
	return with(ctx, runIDKey, id)
}
