package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	obslogger "github.com/smallbiznis/revenuepulse/internal/observability/logger"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/zap"
)

type reportField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type reportResponse struct {
	Title       string                 `json:"title"`
	Header      string                 `json:"header"`
	Fields      []reportField          `json:"fields"`
	Footer      string                 `json:"footer"`
	Text        string                 `json:"text"`
	GeneratedAt time.Time              `json:"generated_at"`
	Snapshot    metricsdomain.Snapshot `json:"snapshot"`
}

type runResponse struct {
	RunID     string          `json:"run_id"`
	Trigger   string          `json:"trigger"`
	Skipped   bool            `json:"skipped"`
	Delivered []string        `json:"delivered"`
	Report    *reportResponse `json:"report,omitempty"`
}

// PreviewReport renders today's report without delivering it.
func (s *Server) PreviewReport(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	snapshot, err := s.metricsSvc.ComputeMetrics(ctx, metricsdomain.ComputeOptions{
		IncludeGrowth: s.holder.Get().IncludeGrowth,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReportResponse(s.reportSvc.Render(snapshot)))
}

// RunReport computes and delivers a report now. Runs are throttled per
// deployment when Redis is configured.
func (s *Server) RunReport(c *gin.Context) {
	log := obslogger.WithContext(c.Request.Context(), s.log)

	limit, err := s.limiter.AllowManualRun(c.Request.Context())
	switch {
	case err != nil:
		log.Warn("manual run rate limit check failed", zap.Error(err))
	case !limit.Allowed:
		seconds := int(math.Ceil(limit.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		AbortWithError(c, reportdomain.ErrRateLimited)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.reportSvc.Run(ctx, reportdomain.RunOptions{Trigger: reportdomain.TriggerManual})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := runResponse{
		RunID:     result.RunID,
		Trigger:   result.Trigger,
		Skipped:   result.Skipped,
		Delivered: result.Delivered,
	}
	if resp.Delivered == nil {
		resp.Delivered = []string{}
	}
	if !result.Skipped {
		report := toReportResponse(result.Report)
		resp.Report = &report
	}
	c.JSON(http.StatusOK, resp)
}

func toReportResponse(report reportdomain.Report) reportResponse {
	fields := make([]reportField, 0, len(report.Fields))
	for _, f := range report.Fields {
		fields = append(fields, reportField{Label: f.Label, Value: f.Value})
	}
	return reportResponse{
		Title:       report.Title,
		Header:      report.Header,
		Fields:      fields,
		Footer:      report.Footer,
		Text:        report.Text(),
		GeneratedAt: report.GeneratedAt,
		Snapshot:    report.Snapshot,
	}
}
