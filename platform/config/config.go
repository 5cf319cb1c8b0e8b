// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
	GetDatabaseMinConns() int32
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings for background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SweepConfig provides settings for the periodic protection sweep.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetSweepBatchSize() int
	GetSweepLockTTL() time.Duration
	GetCommitRetries() int
}

// ProtectionConfig provides the defaults stamped on newly created leads.
type ProtectionConfig interface {
	GetProtectionMonths() int
	GetReminderDays() int
	GetGraceDays() int
}

// EmailConfig provides SMTP settings for owner notices.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAppBaseURL() string
}

// AMQPConfig provides settings for the optional notice fan-out broker.
type AMQPConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsAMQPEnabled() bool
}

// TelemetryConfig provides OpenTelemetry exporter settings.
type TelemetryConfig interface {
	GetServiceName() string
	GetServiceVersion() string
	GetEnv() string
	GetOTELExporter() string
	IsTelemetryEnabled() bool
}

// AccessPolicyConfig points at the optional YAML access policy.
type AccessPolicyConfig interface {
	GetAccessPolicyFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	ServiceName      string
	ServiceVersion   string
	HTTPAddr         string
	DatabaseURL      string
	DBMaxConns       int32
	DBMinConns       int32
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	AppBaseURL       string
	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	SweepInterval    time.Duration
	SweepBatchSize   int
	SweepLockTTL     time.Duration
	CommitRetries    int
	ProtectionMonths int
	ReminderDays     int
	GraceDays        int
	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	AMQPURL          string
	AMQPExchange     string
	OTELExporter     string
	AccessPolicyFile string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DBMaxConns }
func (c *Config) GetDatabaseMinConns() int32 { return c.DBMinConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// SweepConfig implementation
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetSweepBatchSize() int          { return c.SweepBatchSize }
func (c *Config) GetSweepLockTTL() time.Duration  { return c.SweepLockTTL }
func (c *Config) GetCommitRetries() int           { return c.CommitRetries }

// ProtectionConfig implementation
func (c *Config) GetProtectionMonths() int { return c.ProtectionMonths }
func (c *Config) GetReminderDays() int     { return c.ReminderDays }
func (c *Config) GetGraceDays() int        { return c.GraceDays }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAppBaseURL() string       { return c.AppBaseURL }

// AMQPConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsAMQPEnabled() bool     { return c.AMQPURL != "" }

// TelemetryConfig implementation
func (c *Config) GetServiceName() string    { return c.ServiceName }
func (c *Config) GetServiceVersion() string { return c.ServiceVersion }
func (c *Config) GetEnv() string            { return c.Env }
func (c *Config) GetOTELExporter() string   { return c.OTELExporter }
func (c *Config) IsTelemetryEnabled() bool  { return c.OTELExporter != "" && c.OTELExporter != "none" }

// AccessPolicyConfig implementation
func (c *Config) GetAccessPolicyFile() string { return c.AccessPolicyFile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		ServiceName:      getEnv("OTEL_SERVICE_NAME", "lead-protection"),
		ServiceVersion:   getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBMaxConns:       int32(mustInt(getEnv("DB_MAX_CONNS", "25"))),
		DBMinConns:       int32(mustInt(getEnv("DB_MIN_CONNS", "2"))),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "lead-protection"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		SweepInterval:    mustDuration(getEnv("SWEEP_INTERVAL", "1h")),
		SweepBatchSize:   mustInt(getEnv("SWEEP_BATCH_SIZE", "100")),
		SweepLockTTL:     mustDuration(getEnv("SWEEP_LOCK_TTL", "15m")),
		CommitRetries:    mustInt(getEnv("LEAD_COMMIT_RETRIES", "5")),
		ProtectionMonths: mustInt(getEnv("PROTECTION_MONTHS", "6")),
		ReminderDays:     mustInt(getEnv("PROTECTION_REMINDER_DAYS", "60")),
		GraceDays:        mustInt(getEnv("PROTECTION_GRACE_DAYS", "10")),
		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Lead Protection"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "lead.protection"),
		OTELExporter:     getEnv("OTEL_EXPORTER", "none"),
		AccessPolicyFile: getEnv("ACCESS_POLICY_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DBMaxConns <= 0 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DB_MAX_CONNS must be positive and not below DB_MIN_CONNS")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.SweepBatchSize <= 0 || cfg.CommitRetries <= 0 {
		return nil, fmt.Errorf("SWEEP_BATCH_SIZE and LEAD_COMMIT_RETRIES must be positive")
	}
	if cfg.ProtectionMonths <= 0 || cfg.ReminderDays <= 0 || cfg.GraceDays <= 0 {
		return nil, fmt.Errorf("protection months, reminder days and grace days must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
