package tracing

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "revenuepulse/http"

// GinMiddleware opens a server span per request, continuing any trace the
// caller propagated. Unmatched routes are named by method only.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		route := c.FullPath()

		name := req.Method
		if route != "" {
			name = fmt.Sprintf("%s %s", req.Method, route)
		}

		ctx := ExtractContext(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := otel.Tracer(httpTracerName).Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = req.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status < http.StatusInternalServerError {
			return
		}
		for _, ginErr := range c.Errors {
			span.RecordError(SafeError(ginErr.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
