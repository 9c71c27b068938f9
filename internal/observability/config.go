package observability

import (
	"strings"

	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/observability/logger"
	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/observability/tracing"
	"github.com/spf13/viper"
)

const defaultServiceName = "revenuepulse"

type Config struct {
	Service ServiceInfo
	Log     LogConfig
	OTLP    OTLPConfig
}

type ServiceInfo struct {
	Name        string
	Environment string
	Version     string
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// OTLPConfig controls trace and engine-metric export. Spans are recorded
// even when Enabled is false.
type OTLPConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string // grpc|http
	SamplingRatio float64
}

// LoadConfig reads LOG_* and OTEL_* from the environment on top of the
// application config.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}

	return Config{
		Service: ServiceInfo{
			Name:        name,
			Environment: strings.TrimSpace(cfg.Environment),
			Version:     strings.TrimSpace(cfg.AppVersion),
		},
		Log: LogConfig{
			Level:  lower(v.GetString("LOG_LEVEL")),
			Format: lower(v.GetString("LOG_FORMAT")),
		},
		OTLP: OTLPConfig{
			Enabled:       v.GetBool("OTEL_ENABLED"),
			Endpoint:      strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			Protocol:      lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")),
			SamplingRatio: v.GetFloat64("OTEL_SAMPLING_RATIO"),
		},
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch lower(c.Service.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:        c.Service.Name,
		Environment:        c.Service.Environment,
		Version:            c.Service.Version,
		Level:              c.Log.Level,
		Format:             c.Log.Format,
		Debug:              c.Debug(),
		SamplingInitial:    100,
		SamplingThereafter: 100,
		IncludeCaller:      true,
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OTLP.Enabled,
		ServiceName:      c.Service.Name,
		ServiceVersion:   c.Service.Version,
		Environment:      c.Service.Environment,
		ExporterEndpoint: c.OTLP.Endpoint,
		ExporterProtocol: c.OTLP.Protocol,
		SamplingRatio:    c.OTLP.SamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OTLP.Enabled,
		ExporterEndpoint: c.OTLP.Endpoint,
		ExporterProtocol: c.OTLP.Protocol,
		ServiceName:      c.Service.Name,
		Environment:      c.Service.Environment,
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
