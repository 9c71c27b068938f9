package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var sensitiveKeys = []string{"key", "token", "secret", "password", "authorization"}

// ExtractContext reads propagated trace headers into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes whose key looks like a credential.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitive(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError strips secrets such as Stripe keys from an error message before
// it is attached to a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, prefix := range []string{"sk_live_", "sk_test_", "rk_live_", "rk_test_", "xoxb-"} {
		msg = redact(msg, prefix)
	}
	return errors.New(msg)
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func redact(msg, prefix string) string {
	for {
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			return msg
		}
		end := idx + len(prefix)
		for end < len(msg) && !strings.ContainsRune(" \t\n\"',;)", rune(msg[end])) {
			end++
		}
		msg = msg[:idx] + "[REDACTED]" + msg[end:]
	}
}
