package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	metricsdomain "github.com/smallbiznis/revenuepulse/internal/billingmetrics/domain"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
)

const (
	ReportErrorReasonDeadlineExceeded = "deadline_exceeded"
	ReportErrorReasonDataSource       = "data_source"
	ReportErrorReasonComputation      = "computation"
	ReportErrorReasonDelivery         = "delivery"
	ReportErrorReasonNoSinks          = "no_sinks"
	ReportErrorReasonLock             = "lock"
	ReportErrorReasonUnknown          = "unknown"
)

const (
	ReportSkipReasonAlreadyDelivered = "already_delivered"
)

// ReportMetrics captures daily report health for alerting on missed reports.
type ReportMetrics struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runErrors   *prometheus.CounterVec
	runTimeouts *prometheus.CounterVec
	runsSkipped *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	runLoopLag  prometheus.Observer
}

var (
	reportMetricsOnce sync.Once
	reportMetrics     *ReportMetrics
)

// Report returns the singleton report metrics registry.
func Report() *ReportMetrics {
	return ReportWithConfig(Config{})
}

// ReportWithConfig returns the singleton report metrics registry using config labels.
func ReportWithConfig(cfg Config) *ReportMetrics {
	reportMetricsOnce.Do(func() {
		reportMetrics = NewReportMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reportMetrics
}

// NewReportMetrics registers report collectors on registerer.
func NewReportMetrics(registerer prometheus.Registerer, cfg Config) *ReportMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "revenuepulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_report_runs_total",
		Help:        "Report runs by trigger.",
		ConstLabels: constLabels,
	}, []string{"trigger"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "revenuepulse_report_run_duration_seconds",
		Help:        "End-to-end report run latency including provider calls and delivery.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_report_run_errors_total",
		Help:        "Report run failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"trigger", "reason"})
	runTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_report_run_timeouts_total",
		Help:        "Report runs that exceeded the run timeout.",
		ConstLabels: constLabels,
	}, []string{"trigger"})
	runsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_report_runs_skipped_total",
		Help:        "Report runs skipped without delivering.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "revenuepulse_report_deliveries_total",
		Help:        "Report deliveries by sink and outcome.",
		ConstLabels: constLabels,
	}, []string{"sink", "outcome"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "revenuepulse_report_last_success_timestamp_seconds",
		Help:        "Unix time of the last fully delivered report.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "revenuepulse_scheduler_runloop_lag_seconds",
		Help:        "Delay between the scheduled report time and the actual run start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		runErrors,
		runTimeouts,
		runsSkipped,
		deliveries,
		lastSuccess,
		runLoopLag,
	)

	return &ReportMetrics{
		runs:        runs,
		runDuration: runDuration,
		runErrors:   runErrors,
		runTimeouts: runTimeouts,
		runsSkipped: runsSkipped,
		deliveries:  deliveries,
		lastSuccess: lastSuccess,
		runLoopLag:  runLoopLag,
	}
}

func (m *ReportMetrics) IncRun(trigger string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
}

func (m *ReportMetrics) ObserveRunDuration(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// IncRunError counts a failed run, classifying err into a low-cardinality reason.
func (m *ReportMetrics) IncRunError(trigger string, err error) {
	if m == nil || err == nil {
		return
	}
	reason := ClassifyReportError(err)
	if reason == ReportErrorReasonDeadlineExceeded {
		m.runTimeouts.WithLabelValues(trigger).Inc()
	}
	m.runErrors.WithLabelValues(trigger, reason).Inc()
}

func (m *ReportMetrics) IncRunSkipped(reason string) {
	if m == nil {
		return
	}
	m.runsSkipped.WithLabelValues(reason).Inc()
}

func (m *ReportMetrics) IncDelivery(sink string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.deliveries.WithLabelValues(sink, outcome).Inc()
}

func (m *ReportMetrics) SetLastSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

// ObserveRunLoopLag records lag between the scheduled time and actual run start.
func (m *ReportMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ClassifyReportError maps run errors to low-cardinality reasons.
func ClassifyReportError(err error) string {
	switch {
	case err == nil:
		return ReportErrorReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ReportErrorReasonDeadlineExceeded
	case errors.Is(err, metricsdomain.ErrDataSource):
		return ReportErrorReasonDataSource
	case errors.Is(err, metricsdomain.ErrMetricsComputation):
		return ReportErrorReasonComputation
	case errors.Is(err, reportdomain.ErrNoSinks):
		return ReportErrorReasonNoSinks
	case errors.Is(err, reportdomain.ErrDeliveryFailed):
		return ReportErrorReasonDelivery
	default:
		return ReportErrorReasonUnknown
	}
}
