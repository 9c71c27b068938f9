package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
)

type mrrResponse struct {
	MonthlyRecurringRevenue decimal.Decimal `json:"monthly_recurring_revenue"`
	AsOf                    *time.Time      `json:"as_of,omitempty"`
}

// GetDailyMetrics computes a fresh snapshot. include_growth overrides the
// report setting.
func (s *Server) GetDailyMetrics(c *gin.Context) {
	includeGrowth := s.holder.Get().IncludeGrowth
	if raw := strings.TrimSpace(c.Query("include_growth")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, &invalidParam{name: "include_growth"})
			return
		}
		includeGrowth = parsed
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	snapshot, err := s.metricsSvc.ComputeMetrics(ctx, metricsdomain.ComputeOptions{IncludeGrowth: includeGrowth})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetMRR returns current MRR, or MRR as of the as_of query parameter
// (RFC 3339 timestamp or YYYY-MM-DD, read as end of day locally).
func (s *Server) GetMRR(c *gin.Context) {
	asOf, err := s.parseAsOf(c.Query("as_of"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	mrr, err := s.metricsSvc.CalculateMRR(ctx, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, mrrResponse{MonthlyRecurringRevenue: mrr, AsOf: asOf})
}

func (s *Server) parseAsOf(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, s.cfg.Location())
	if err != nil {
		return nil, &invalidParam{name: "as_of"}
	}
	endOfDay := day.AddDate(0, 0, 1).Add(-time.Second).UTC()
	return &endOfDay, nil
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RunTimeoutOrDefault())
}
