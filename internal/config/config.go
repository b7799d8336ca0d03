package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string `validate:"required,numeric"`
	Debug bool

	// Database: postgres when DatabaseURL is set, sqlite otherwise
	DatabaseURL string `validate:"required_without=SQLitePath"`
	SQLitePath  string `validate:"required_without=DatabaseURL"`

	// Automation provider
	LinkedAPIKey          string        `validate:"required"`
	LinkedAPIBaseURL      string        `validate:"required,url"`
	LinkedAPIPollInterval time.Duration `validate:"gt=0"`
	LinkedAPIMaxPolls     int           `validate:"gt=0"`

	// Text generation; empty key disables the AI layer
	GeminiAPIKey string
	GeminiModels []string

	// Pacing can be turned off for local runs only
	PacingEnabled bool
	// Accounts processed in parallel within one job
	AccountConcurrency int `validate:"gte=1,lte=32"`

	// Daily digest
	DigestSchedule string `validate:"required"`
	TimeZone       string `validate:"required"`

	// Azure Storage configuration; job-run reports stay in memory when unset
	StorageAccount   string
	StorageContainer string `validate:"required_with=StorageAccount"`

	// Notification configuration
	TeamsWebhookURL   string `validate:"omitempty,url"`
	NotificationEmail string `validate:"omitempty,email"`
	SMTPHost          string `validate:"required_with=NotificationEmail"`
	SMTPPort          int    `validate:"gt=0"`
	SMTPUsername      string `validate:"required_with=NotificationEmail"`
	SMTPPassword      string `validate:"required_with=NotificationEmail"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", ""),

		LinkedAPIKey:          getEnv("LINKEDAPI_API_KEY", ""),
		LinkedAPIBaseURL:      getEnv("LINKEDAPI_BASE_URL", "https://api.linkedapi.io"),
		LinkedAPIPollInterval: getDurationEnv("LINKEDAPI_POLL_INTERVAL", 2*time.Second),
		LinkedAPIMaxPolls:     getIntEnv("LINKEDAPI_MAX_POLLS", 60),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModels: getSliceEnv("GEMINI_MODELS", nil),

		PacingEnabled:      getBoolEnv("PACING_ENABLED", true),
		AccountConcurrency: getIntEnv("ACCOUNT_CONCURRENCY", 4),

		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 8 * * *"),
		TimeZone:       getEnv("TIMEZONE", "UTC"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "outreach-runs"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.TimeZone, err)
	}
	return nil
}

// Database returns the GORM driver name and DSN to open
func (c *Config) Database() (driver, dsn string) {
	if c.DatabaseURL != "" {
		return "postgres", c.DatabaseURL
	}
	return "sqlite", c.SQLitePath
}

// AIEnabled reports whether a text generation key is configured
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

// NotificationsEnabled reports whether any alert channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
