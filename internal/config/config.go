package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingCredential = errors.New("missing_credential")
	ErrInvalidConfig     = errors.New("invalid_config")
)

const (
	DataSourceStripe = "stripe"
	DataSourceMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AdminAPIKey string

	DataSource   string
	StripeAPIKey string
	StripeAPIURL string
	FixturesPath string

	SlackBotToken  string
	SlackChannelID string

	TelegramBotToken  string
	TelegramChatID    int64
	TelegramAttachPDF bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	EmailTo      []string

	Timezone    string
	MRRCacheTTL time.Duration
	RunTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTLPEndpoint string
}

// DefaultRunTimeout bounds a report run when RUN_TIMEOUT is unset or not positive.
const DefaultRunTimeout = 2 * time.Minute

// RunTimeoutOrDefault returns RunTimeout, or DefaultRunTimeout when it is not positive.
func (c Config) RunTimeoutOrDefault() time.Duration {
	if c.RunTimeout <= 0 {
		return DefaultRunTimeout
	}
	return c.RunTimeout
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cacheTTL := getenvDuration("MRR_CACHE_TTL", time.Hour)
	if getenvBool("MRR_CACHE_DISABLED", false) {
		cacheTTL = 0
	}

	return Config{
		AppName:           getenv("APP_SERVICE", "revenuepulse"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AdminAPIKey:       strings.TrimSpace(getenv("ADMIN_API_KEY", "")),
		DataSource:        strings.ToLower(getenv("DATA_SOURCE", DataSourceStripe)),
		StripeAPIKey:      strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
		StripeAPIURL:      strings.TrimSpace(getenv("STRIPE_API_URL", "")),
		FixturesPath:      strings.TrimSpace(getenv("FIXTURES_PATH", "fixtures.yml")),
		SlackBotToken:     strings.TrimSpace(getenv("SLACK_BOT_TOKEN", "")),
		SlackChannelID:    strings.TrimSpace(getenv("SLACK_CHANNEL_ID", "")),
		TelegramBotToken:  strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
		TelegramChatID:    getenvInt64("TELEGRAM_CHAT_ID", 0),
		TelegramAttachPDF: getenvBool("TELEGRAM_ATTACH_PDF", false),
		SMTPHost:          strings.TrimSpace(getenv("SMTP_HOST", "")),
		SMTPPort:          int(getenvInt64("SMTP_PORT", 587)),
		SMTPUsername:      getenv("SMTP_USERNAME", ""),
		SMTPPassword:      getenv("SMTP_PASSWORD", ""),
		SMTPFrom:          strings.TrimSpace(getenv("SMTP_FROM", "")),
		EmailTo:           splitList(getenv("REPORT_EMAIL_TO", "")),
		Timezone:          getenv("TIMEZONE", "America/New_York"),
		MRRCacheTTL:       cacheTTL,
		RunTimeout:        getenvDuration("RUN_TIMEOUT", DefaultRunTimeout),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

// Validate reports missing credentials for the selected data source.
func (c Config) Validate() error {
	switch c.DataSource {
	case DataSourceStripe:
		if c.StripeAPIKey == "" {
			return fmt.Errorf("%w: STRIPE_API_KEY", ErrMissingCredential)
		}
	case DataSourceMemory:
		if c.FixturesPath == "" {
			return fmt.Errorf("%w: FIXTURES_PATH", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown DATA_SOURCE %q", ErrInvalidConfig, c.DataSource)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: TIMEZONE %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location returns the reporting timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func (c Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && len(c.EmailTo) > 0
}

func (c Config) Debug() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
