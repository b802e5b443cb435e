package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Database
	DatabaseURL           string // sqlite file holding settings, users and the email log
	ProductionDatabaseURL string // postgres database the dashboard writes production data to

	// Security
	SettingsEncryptionKey string
	PinHMACKey            string
	SessionTTL            time.Duration
	SecureCookies         bool

	// First admin
	SeedAdminName string
	SeedAdminPin  string

	// SMTP seeds, used only when no settings row exists yet
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	SMTPFromAddress string
	SMTPFromName    string

	// SMTPTimeout bounds one SMTP session, from dial to QUIT
	SMTPTimeout time.Duration

	Scheduler Scheduler
}

// Scheduler holds the dispatcher timing knobs.
type Scheduler struct {
	Timezone      string
	CheckInterval time.Duration
	StartupDelay  time.Duration
	GracePeriod   time.Duration
	RetryDelay    time.Duration
	MaxAttempts   int
}

func Load() (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Define flags with env var fallbacks
	flag.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	flag.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	flag.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", "floorreports.db"), "SQLite database path")
	flag.StringVar(&cfg.ProductionDatabaseURL, "production-database-url", getEnv("PRODUCTION_DATABASE_URL", ""), "PostgreSQL connection string for production data")

	cfg.SettingsEncryptionKey = mustEnv("SETTINGS_ENCRYPTION_KEY")
	cfg.PinHMACKey = mustEnv("PIN_HMAC_KEY")
	cfg.SessionTTL = getDuration("SESSION_TTL", 5*time.Minute)
	cfg.SecureCookies = getEnv("SECURE_COOKIES", "false") == "true"

	cfg.SeedAdminName = getEnv("SEED_ADMIN_NAME", "")
	cfg.SeedAdminPin = getEnv("SEED_ADMIN_PIN", "")

	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = getInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnv("SMTP_USER", "")
	cfg.SMTPPass = getEnv("SMTP_PASS", "")
	cfg.SMTPFromAddress = getEnv("SMTP_FROM_ADDRESS", "")
	cfg.SMTPFromName = getEnv("SMTP_FROM_NAME", "KVH Productie Dashboard")
	cfg.SMTPTimeout = getDuration("SMTP_TIMEOUT", 30*time.Second)

	cfg.Scheduler = Scheduler{
		Timezone:      getEnv("REPORT_TIMEZONE", "Europe/Amsterdam"),
		CheckInterval: getDuration("REPORT_CHECK_INTERVAL", time.Minute),
		StartupDelay:  getDuration("REPORT_STARTUP_DELAY", 5*time.Second),
		GracePeriod:   getDuration("REPORT_GRACE_PERIOD", 5*time.Minute),
		RetryDelay:    getDuration("REPORT_RETRY_DELAY", 10*time.Minute),
		MaxAttempts:   getInt("REPORT_MAX_ATTEMPTS", 3),
	}

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ProductionDatabaseURL == "" {
		return fmt.Errorf("PRODUCTION_DATABASE_URL is required")
	}

	if len(c.SettingsEncryptionKey) < 32 {
		return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be at least 32 characters")
	}

	if len(c.PinHMACKey) < 32 {
		return fmt.Errorf("PIN_HMAC_KEY must be at least 32 characters")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.SMTPTimeout <= 0 {
		return fmt.Errorf("SMTP_TIMEOUT must be positive")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}

	if c.Scheduler.CheckInterval < time.Second {
		return fmt.Errorf("REPORT_CHECK_INTERVAL must be at least 1s")
	}

	if c.Scheduler.GracePeriod < 0 || c.Scheduler.RetryDelay < 0 || c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler durations must not be negative")
	}

	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("REPORT_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
		return fallback
	}
	return d
}

func mustEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("missing required environment variable", "key", key)
	os.Exit(1)
	return ""
}
