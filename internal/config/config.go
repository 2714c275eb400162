package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"autobill/internal/logger"
)

// AI providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Storage backends
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

type Config struct {
	// Database Configuration
	DatabaseDriver string // sqlite or postgres
	DatabaseDSN    string
	DatabaseDebug  bool

	// AI Configuration
	AIProvider    string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	AITemperature float32
	AIMaxRetries  int

	// Object Storage Configuration
	StorageBackend    string
	LocalStorageDir   string
	LocalStorageURL   string
	GCSBucket         string
	GCSPrefix         string
	GoogleCredentials string // inline JSON
	GoogleCredsFile   string // path to service account JSON

	// Email Configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	CompanyName  string

	// Audit Configuration
	AuditSheetURL       string
	AuditSheetWorksheet string

	// Bank statement import
	PaymentsSheetURL  string
	PaymentsWorksheet string

	// Scheduling Configuration
	BillingSchedule  string
	ReminderSchedule string
	ScheduleTimezone string
	StepTimeout      time.Duration
	BillingWorkers   int

	// Admin HTTP Configuration
	HTTPAddr   string
	AdminToken string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		DatabaseDriver:      getEnv("DB_DRIVER", "sqlite"),
		DatabaseDSN:         getEnv("DATABASE_DSN", "autobill.db"),
		DatabaseDebug:       getBoolEnv("DB_DEBUG", false),
		AIProvider:          strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		AITemperature:       getFloatEnv("AI_TEMPERATURE", 0.1),
		AIMaxRetries:        getIntEnv("AI_MAX_RETRIES", 2),
		StorageBackend:      strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		LocalStorageDir:     getEnv("LOCAL_STORAGE_DIR", "./data/invoices"),
		LocalStorageURL:     getEnv("LOCAL_STORAGE_URL", ""),
		GCSBucket:           getEnv("GCS_BUCKET", ""),
		GCSPrefix:           getEnv("GCS_PREFIX", "invoices"),
		GoogleCredentials:   getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleCredsFile:     getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		SMTPHost:            getEnv("SMTP_HOST", "localhost"),
		SMTPPort:            getIntEnv("SMTP_PORT", 1025),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		MailFrom:            getEnv("MAIL_FROM", "billing@localhost"),
		CompanyName:         getEnv("COMPANY_NAME", "Autobill"),
		AuditSheetURL:       getEnv("AUDIT_SHEET_URL", ""),
		AuditSheetWorksheet: getEnv("AUDIT_SHEET_WORKSHEET", "Audit"),
		PaymentsSheetURL:    getEnv("PAYMENTS_SHEET_URL", ""),
		PaymentsWorksheet:   getEnv("PAYMENTS_WORKSHEET", "Bank"),
		BillingSchedule:     getEnv("BILLING_SCHEDULE", "0 9 * * *"),
		ReminderSchedule:    getEnv("REMINDER_SCHEDULE", "0 10 * * *"),
		ScheduleTimezone:    getEnv("SCHEDULE_TIMEZONE", "UTC"),
		StepTimeout:         getDurationEnv("STEP_TIMEOUT", 30*time.Second),
		BillingWorkers:      getIntEnv("BILLING_WORKERS", 1),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		AdminToken:          getEnv("ADMIN_TOKEN", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:       getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:           getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	switch c.AIProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be openai or gemini, got %q", c.AIProvider)
	}

	switch c.StorageBackend {
	case StorageLocal:
		if c.LocalStorageDir == "" {
			return fmt.Errorf("LOCAL_STORAGE_DIR is required when STORAGE_BACKEND=local")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or gcs, got %q", c.StorageBackend)
	}

	if c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT must be positive")
	}
	if c.BillingWorkers < 1 {
		return fmt.Errorf("BILLING_WORKERS must be at least 1")
	}
	if _, err := time.LoadLocation(c.ScheduleTimezone); err != nil {
		return fmt.Errorf("SCHEDULE_TIMEZONE %q: %w", c.ScheduleTimezone, err)
	}
	return nil
}

// Location returns the scheduling time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float32) float32 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 32); err == nil {
		return float32(v)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
