package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

const exportInterval = 30 * time.Second

// Instrument names.
const (
	MetricCacheLookups       = "revenuepulse.mrr.cache.lookups"
	MetricDataSourceRequests = "revenuepulse.datasource.requests"
	MetricUnknownIntervals   = "revenuepulse.mrr.unknown_intervals"
	MetricComputeDuration    = "revenuepulse.metric.duration"
)

// Metrics holds the metrics-engine instruments. A nil *Metrics records nothing.
type Metrics struct {
	cacheLookups       metric.Int64Counter
	dataSourceRequests metric.Int64Counter
	unknownIntervals   metric.Int64Counter
	computeDuration    metric.Float64Histogram
}

// NewProvider installs the global meter provider. Without export enabled a
// no-op provider is used.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("metric resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("otlp metric export enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New creates the engine instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "revenuepulse"
	}
	meter := provider.Meter(scope)

	var m Metrics
	var errs [4]error
	m.cacheLookups, errs[0] = meter.Int64Counter(MetricCacheLookups,
		metric.WithDescription("MRR cache lookups by key kind and result."))
	m.dataSourceRequests, errs[1] = meter.Int64Counter(MetricDataSourceRequests,
		metric.WithDescription("Calls made to the subscription data source."))
	m.unknownIntervals, errs[2] = meter.Int64Counter(MetricUnknownIntervals,
		metric.WithDescription("Subscriptions billed on an unrecognised interval, treated as monthly."))
	m.computeDuration, errs[3] = meter.Float64Histogram(MetricComputeDuration,
		metric.WithDescription("Time spent computing one metric."),
		metric.WithUnit("s"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordCacheLookup counts MRR cache hits and misses. key is collapsed to
// "current" or "as_of".
func (m *Metrics) RecordCacheLookup(ctx context.Context, key string, hit bool) {
	if m == nil {
		return
	}
	kind := "as_of"
	if key == "current" {
		kind = "current"
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(
		attribute.String("key", kind),
		attribute.String("result", result),
	)))
}

func (m *Metrics) RecordDataSourceRequest(ctx context.Context, provider, op string, err error) {
	if m == nil {
		return
	}
	m.dataSourceRequests.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(
		attribute.String("provider", provider),
		attribute.String("operation", op),
		outcome(err),
	)))
}

func (m *Metrics) RecordUnknownInterval(ctx context.Context, interval string) {
	if m == nil {
		return
	}
	m.unknownIntervals.Add(ctx, 1, metric.WithAttributes(attribute.String("interval", interval)))
}

func (m *Metrics) ObserveMetricDuration(ctx context.Context, name string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.computeDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attribute.NewSet(
		attribute.String("metric", name),
		outcome(err),
	)))
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", OutcomeError)
	}
	return attribute.String("outcome", OutcomeSuccess)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
