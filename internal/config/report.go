package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	SinkSlack    = "slack"
	SinkTelegram = "telegram"
	SinkEmail    = "email"
)

// ReportConfig controls what the daily report contains and when it is sent.
type ReportConfig struct {
	// Schedule is the local delivery time as HH:MM.
	Schedule      string
	IncludeGrowth bool
	Sinks         []string
	Title         string
}

func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Schedule:      "09:00",
		IncludeGrowth: true,
		Sinks:         []string{SinkSlack},
		Title:         "Stripe Daily Metrics Report",
	}
}

// ScheduleTime parses Schedule into hour and minute.
func (c ReportConfig) ScheduleTime() (int, int, error) {
	return ParseSchedule(c.Schedule)
}

func ParseSchedule(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule %q must be HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule %q has invalid hour", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule %q has invalid minute", raw)
	}
	return hour, minute, nil
}

type ReportConfigHolder struct {
	current atomic.Value // holds ReportConfig
}

// NewStaticReportConfigHolder returns a holder that never reloads.
func NewStaticReportConfigHolder(cfg ReportConfig) *ReportConfigHolder {
	holder := &ReportConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewReportConfigHolder reads report.yml and keeps it hot-reloaded.
func NewReportConfigHolder(log *zap.Logger) (*ReportConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("report")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/revenuepulse")
	v.AddConfigPath(".")

	return newReportConfigHolder(v, log)
}

func newReportConfigHolder(v *viper.Viper, log *zap.Logger) (*ReportConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.report")

	defaults := DefaultReportConfig()
	v.SetDefault("report.schedule", defaults.Schedule)
	v.SetDefault("report.include_growth", defaults.IncludeGrowth)
	v.SetDefault("report.sinks", defaults.Sinks)
	v.SetDefault("report.title", defaults.Title)

	v.SetEnvPrefix("REVENUEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := readReportConfig(v)
	if err := validateReportConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReportConfigHolder(cfg)
	if !fileLoaded {
		log.Info("report config file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := holder.Replace(readReportConfig(v)); err != nil {
			log.Warn("invalid report config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		log.Info("report config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *ReportConfigHolder) Get() ReportConfig {
	return h.current.Load().(ReportConfig)
}

// Replace swaps in cfg if it is valid; readers see it on their next Get.
func (h *ReportConfigHolder) Replace(cfg ReportConfig) error {
	if err := validateReportConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func readReportConfig(v *viper.Viper) ReportConfig {
	sinks := make([]string, 0)
	for _, sink := range v.GetStringSlice("report.sinks") {
		sink = strings.ToLower(strings.TrimSpace(sink))
		if sink != "" {
			sinks = append(sinks, sink)
		}
	}
	return ReportConfig{
		Schedule:      strings.TrimSpace(v.GetString("report.schedule")),
		IncludeGrowth: v.GetBool("report.include_growth"),
		Sinks:         sinks,
		Title:         strings.TrimSpace(v.GetString("report.title")),
	}
}

func validateReportConfig(cfg ReportConfig) error {
	if _, _, err := cfg.ScheduleTime(); err != nil {
		return fmt.Errorf("report.schedule: %w", err)
	}
	if len(cfg.Sinks) == 0 {
		return errors.New("report.sinks cannot be empty")
	}
	for _, sink := range cfg.Sinks {
		switch sink {
		case SinkSlack, SinkTelegram, SinkEmail:
		default:
			return fmt.Errorf("report.sinks: unknown sink %q", sink)
		}
	}
	if cfg.Title == "" {
		return errors.New("report.title cannot be empty")
	}
	return nil
}
