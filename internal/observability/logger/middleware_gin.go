package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revenuepulse/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RequestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging. ErrorClassifier names the
// error_type field for requests that recorded an error.
type MiddlewareConfig struct {
	Log             *zap.Logger
	ErrorClassifier func(err error) string
}

// probes are logged at debug so scrapes and health checks stay quiet.
var probes = map[string]bool{"/metrics": true, "/health": true}

// GinMiddleware assigns every request an ID (the caller's X-Request-Id when
// sent) and writes one http_request entry after the handler returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	base := cfg.Log
	if base == nil {
		base = zap.L()
	}
	base = base.Named("http")

	return func(c *gin.Context) {
		began := time.Now()

		ctx, id := correlation.EnsureRequestID(
			correlation.WithRequestID(c.Request.Context(), c.GetHeader(RequestIDHeader)))
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, id)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(began)),
		}
		if last := c.Errors.Last(); last != nil {
			kind := "unknown"
			if cfg.ErrorClassifier != nil {
				kind = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", kind), zap.Error(last.Err))
		}

		if ce := WithContext(ctx, base).Check(requestLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case probes[route]:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
