package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// invalidParam reports a malformed query parameter.
type invalidParam struct {
	name string
}

func (e *invalidParam) Error() string { return "invalid " + e.name }

func (e *invalidParam) Is(target error) bool { return target == ErrInvalidRequest }

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var param *invalidParam
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	case errors.As(err, &param):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: param.Error()}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, reportdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many report runs, retry later"}
	case errors.Is(err, reportdomain.ErrNoSinks):
		return http.StatusConflict, errorPayload{Type: "no_report_sinks", Message: "no configured report sink is selected"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{Type: "timeout", Message: "request timed out"}
	case errors.Is(err, metricsdomain.ErrDataSource):
		return http.StatusBadGateway, errorPayload{Type: "data_source_error", Message: "billing provider request failed"}
	case errors.Is(err, reportdomain.ErrDeliveryFailed):
		return http.StatusBadGateway, errorPayload{Type: "delivery_failed", Message: "report delivery failed"}
	case errors.Is(err, metricsdomain.ErrMetricsComputation):
		return http.StatusInternalServerError, errorPayload{Type: "metrics_computation_error", Message: "metrics computation failed"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog returns the payload type used for err.
func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}
