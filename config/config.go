package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Log            LogConfig
	Gateway        GatewayConfig
	Scheduler      SchedulerConfig
	Analytics      AnalyticsConfig
	Notify         NotifyConfig
	ConversionFeed ConversionFeedConfig
	Archive        ArchiveConfig
}

type AppConfig struct {
	Name           string
	Env            string
	Port           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	LogLevel        string // silent, error, warn, info
	SlowThreshold   time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// GatewayConfig holds the shared token the API gateway presents
type GatewayConfig struct {
	ServiceToken string
}

type SchedulerConfig struct {
	Enabled       bool
	AnalyticsCron string
}

type AnalyticsConfig struct {
	// FilterByPeriod restricts a snapshot to its own period window.
	// When false every snapshot is a cumulative total stored under its period key.
	FilterByPeriod bool
}

type NotifyConfig struct {
	WebhookURL string
	Token      string
	BufferSize int
	Timeout    time.Duration
	Locale     string
}

type ConversionFeedConfig struct {
	URL          string
	Token        string
	PollInterval time.Duration
}

// ArchiveConfig configures the optional R2/S3 copy of analytics snapshots
type ArchiveConfig struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// Load reads .env (if present) and LEDGER_* environment variables on top of built-in defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:           v.GetString("app.name"),
			Env:            v.GetString("app.env"),
			Port:           v.GetString("app.port"),
			AllowedOrigins: splitList(v.GetString("app.allowed_origins")),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Gateway: GatewayConfig{
			ServiceToken: v.GetString("gateway.service_token"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			AnalyticsCron: v.GetString("scheduler.analytics_cron"),
		},
		Analytics: AnalyticsConfig{
			FilterByPeriod: v.GetBool("analytics.filter_by_period"),
		},
		Notify: NotifyConfig{
			WebhookURL: v.GetString("notify.webhook_url"),
			Token:      v.GetString("notify.token"),
			BufferSize: v.GetInt("notify.buffer_size"),
			Timeout:    v.GetDuration("notify.timeout"),
			Locale:     v.GetString("notify.locale"),
		},
		ConversionFeed: ConversionFeedConfig{
			URL:          v.GetString("conversion_feed.url"),
			Token:        v.GetString("conversion_feed.token"),
			PollInterval: v.GetDuration("conversion_feed.poll_interval"),
		},
		Archive: ArchiveConfig{
			Enabled:         v.GetBool("archive.enabled"),
			AccountID:       v.GetString("archive.account_id"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			AccessKeySecret: v.GetString("archive.access_key_secret"),
			Bucket:          v.GetString("archive.bucket"),
			Prefix:          v.GetString("archive.prefix"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "referral-ledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "5200")
	v.SetDefault("app.allowed_origins", "http://localhost:3000")

	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.analytics_cron", "5 0 * * *")

	v.SetDefault("analytics.filter_by_period", false)

	v.SetDefault("notify.buffer_size", 256)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.locale", "en")

	v.SetDefault("conversion_feed.poll_interval", 30*time.Second)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "analytics")
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("LEDGER_DATABASE_URL is required"))
	}
	if c.Gateway.ServiceToken == "" {
		errs = append(errs, errors.New("LEDGER_GATEWAY_SERVICE_TOKEN is required"))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("LEDGER_ARCHIVE_BUCKET is required when the archive is enabled"))
	}
	if c.ConversionFeed.URL != "" && c.ConversionFeed.PollInterval <= 0 {
		errs = append(errs, errors.New("LEDGER_CONVERSION_FEED_POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
