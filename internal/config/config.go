package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthTokenSecret string        `mapstructure:"AUTH_TOKEN_SECRET"`
	AuthTokenTTL    time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`

	ReferenceTimezone string `mapstructure:"REFERENCE_TIMEZONE"`

	ReminderEnabled     bool   `mapstructure:"REMINDER_ENABLED"`
	ReminderSchedule    string `mapstructure:"REMINDER_SCHEDULE"`
	ReminderPageSize    int    `mapstructure:"REMINDER_PAGE_SIZE"`
	ReminderConcurrency int    `mapstructure:"REMINDER_CONCURRENCY"`
	MarkerPruneSchedule string `mapstructure:"MARKER_PRUNE_SCHEDULE"`
	MarkerRetentionDays int    `mapstructure:"MARKER_RETENTION_DAYS"`

	OneSignalAPIURL     string `mapstructure:"ONESIGNAL_API_URL"`
	OneSignalAppID      string `mapstructure:"ONESIGNAL_APP_ID"`
	OneSignalRESTAPIKey string `mapstructure:"ONESIGNAL_REST_API_KEY"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_TOKEN_SECRET", "AUTH_TOKEN_TTL", "AUTH_ISSUER", "CORS_ORIGINS",
	"REFERENCE_TIMEZONE",
	"REMINDER_ENABLED", "REMINDER_SCHEDULE", "REMINDER_PAGE_SIZE", "REMINDER_CONCURRENCY",
	"MARKER_PRUNE_SCHEDULE", "MARKER_RETENTION_DAYS",
	"ONESIGNAL_API_URL", "ONESIGNAL_APP_ID", "ONESIGNAL_REST_API_KEY",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_TOKEN_TTL", "24h")
	v.SetDefault("AUTH_ISSUER", "glucohealth")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REFERENCE_TIMEZONE", "America/Bogota")
	v.SetDefault("REMINDER_ENABLED", true)
	v.SetDefault("REMINDER_SCHEDULE", "* * * * *")
	v.SetDefault("REMINDER_PAGE_SIZE", 100)
	v.SetDefault("REMINDER_CONCURRENCY", 4)
	v.SetDefault("MARKER_PRUNE_SCHEDULE", "0 3 * * *")
	v.SetDefault("MARKER_RETENTION_DAYS", 30)
	v.SetDefault("SMTP_PORT", 587)

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location loads REFERENCE_TIMEZONE, the zone days and cron rules are read in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("REFERENCE_TIMEZONE %q: %w", c.ReferenceTimezone, err)
	}
	return loc, nil
}

func (c *Config) MarkerRetention() time.Duration {
	return time.Duration(c.MarkerRetentionDays) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsDev() && c.AuthTokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required when ENV=%q", c.Env)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := recurrence.ValidateJobSpec(c.ReminderSchedule); err != nil {
		return fmt.Errorf("REMINDER_SCHEDULE: %w", err)
	}
	if err := recurrence.ValidateJobSpec(c.MarkerPruneSchedule); err != nil {
		return fmt.Errorf("MARKER_PRUNE_SCHEDULE: %w", err)
	}
	if c.ReminderPageSize <= 0 || c.ReminderConcurrency <= 0 {
		return fmt.Errorf("REMINDER_PAGE_SIZE and REMINDER_CONCURRENCY must be positive")
	}
	if c.MarkerRetentionDays <= 0 {
		return fmt.Errorf("MARKER_RETENTION_DAYS must be positive, got %d", c.MarkerRetentionDays)
	}
	if (c.OneSignalAppID == "") != (c.OneSignalRESTAPIKey == "") {
		return fmt.Errorf("ONESIGNAL_APP_ID and ONESIGNAL_REST_API_KEY must be set together")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}
