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

// AppConfig encapsulates all runtime configuration knobs.
type AppConfig struct {
	App      AppSettings
	HTTP     HTTPSettings
	Auth     AuthSettings
	Log      LogSettings
	Database DatabaseSettings
	Audit    AuditSettings
	OTRS     OTRSSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

type HTTPSettings struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	WriteTimeoutAPI time.Duration // Per-request budget for routes that call OTRS
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthSettings struct {
	Enabled     bool
	IssuerURI   string
	JWKSetURI   string
	ClockSkew   time.Duration
	BypassPaths []string
}

type LogSettings struct {
	Level string
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool
}

// Enabled reports whether enough is configured to open a connection.
func (d DatabaseSettings) Enabled() bool {
	return d.Host != "" && d.Database != ""
}

type AuditSettings struct {
	Enabled         bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// OTRSSettings configures the connection to the OTRS GenericInterface REST web service.
type OTRSSettings struct {
	BaseURL     string
	Login       string
	Password    string
	ReadTimeout time.Duration // Network timeout per OTRS call; sessions closer than this to expiry are renewed
	SessionTTL  time.Duration // Must match SessionMaxTime on the OTRS side

	// Optional session to resume instead of authenticating on first use.
	SessionID        string
	SessionCreatedAt time.Time

	ClosedStateID         int64
	MaxConcurrentRequests int
	RateLimitRPS          int
	AuthRetries           int
}

// Load resolves the application configuration from environment variables.
// It first attempts to load variables from a .env file if it exists.
// Environment variables set in the system take precedence over .env file values.
func Load() (AppConfig, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "otrs_connector"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		HTTP: HTTPSettings{
			Port:            getEnvAsInt("APP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			WriteTimeoutAPI: getEnvAsDuration("HTTP_WRITE_TIMEOUT_API", 2*time.Minute),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthSettings{
			Enabled:     getEnvAsBool("AUTH_ENABLED", true),
			IssuerURI:   strings.TrimSpace(os.Getenv("JWT_ISSUER_URI")),
			JWKSetURI:   strings.TrimSpace(os.Getenv("JWT_JWK_SET_URI")),
			ClockSkew:   getEnvAsDuration("AUTH_CLOCK_SKEW", 2*time.Minute),
			BypassPaths: getEnvAsCSV("AUTH_BYPASS_PATHS", []string{"/health"}),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseSettings{
			Host:            strings.TrimSpace(os.Getenv("DB_HOST")),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "otrs_connector"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			RunMigrations:   getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Audit: AuditSettings{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			LogRequestBody:  getEnvAsBool("AUDIT_LOG_REQUEST_BODY", true),
			LogResponseBody: getEnvAsBool("AUDIT_LOG_RESPONSE_BODY", true),
			MaxBodySize:     getEnvAsInt("AUDIT_MAX_BODY_SIZE", 102400),
		},
		OTRS: OTRSSettings{
			BaseURL:               strings.TrimRight(strings.TrimSpace(os.Getenv("OTRS_BASE_URL")), "/"),
			Login:                 strings.TrimSpace(os.Getenv("OTRS_LOGIN")),
			Password:              os.Getenv("OTRS_PASSWORD"),
			ReadTimeout:           getEnvAsDuration("OTRS_READ_TIMEOUT", 30*time.Second),
			SessionTTL:            getEnvAsDuration("OTRS_SESSION_TTL", 8*time.Hour),
			SessionID:             strings.TrimSpace(os.Getenv("OTRS_SESSION_ID")),
			ClosedStateID:         int64(getEnvAsInt("OTRS_CLOSED_STATE_ID", 2)),
			MaxConcurrentRequests: getEnvAsInt("OTRS_MAX_CONCURRENT_REQUESTS", 50),
			RateLimitRPS:          getEnvAsInt("OTRS_RATE_LIMIT_RPS", 0),
			AuthRetries:           getEnvAsInt("OTRS_AUTH_RETRIES", 3),
		},
	}

	createdAt, err := getEnvAsUnixTime("OTRS_SESSION_CREATED_AT")
	if err != nil {
		return cfg, fmt.Errorf("invalid config: OTRS_SESSION_CREATED_AT: %w", err)
	}
	cfg.OTRS.SessionCreatedAt = createdAt

	if err := cfg.OTRS.validate(); err != nil {
		return cfg, err
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.IssuerURI == "" {
			return cfg, errors.New("invalid config: JWT_ISSUER_URI is required when AUTH_ENABLED=true")
		}
		if cfg.Auth.JWKSetURI == "" {
			return cfg, errors.New("invalid config: JWT_JWK_SET_URI is required when AUTH_ENABLED=true")
		}
	}

	return cfg, nil
}

func (o OTRSSettings) validate() error {
	if o.BaseURL == "" {
		return errors.New("invalid config: OTRS_BASE_URL is required")
	}
	if o.SessionID == "" && o.Login == "" {
		return errors.New("invalid config: OTRS_LOGIN is required unless OTRS_SESSION_ID is set")
	}
	if (o.SessionID == "") != o.SessionCreatedAt.IsZero() {
		return errors.New("invalid config: OTRS_SESSION_ID and OTRS_SESSION_CREATED_AT must be set together")
	}
	if o.ReadTimeout <= 0 {
		return errors.New("invalid config: OTRS_READ_TIMEOUT must be greater than 0")
	}
	if o.SessionTTL < 0 {
		return errors.New("invalid config: OTRS_SESSION_TTL cannot be negative")
	}
	if o.MaxConcurrentRequests <= 0 || o.MaxConcurrentRequests > 200 {
		return errors.New("invalid config: OTRS_MAX_CONCURRENT_REQUESTS must be between 1 and 200")
	}
	if o.RateLimitRPS < 0 {
		return errors.New("invalid config: OTRS_RATE_LIMIT_RPS cannot be negative")
	}
	if o.AuthRetries < 0 {
		return errors.New("invalid config: OTRS_AUTH_RETRIES cannot be negative")
	}
	if o.ClosedStateID <= 0 {
		return errors.New("invalid config: OTRS_CLOSED_STATE_ID must be greater than 0")
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (d DatabaseSettings) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, d.SSLMode,
	)
}

// Address returns the HTTP listen address in host:port form.
func (h HTTPSettings) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsUnixTime parses a unix timestamp in seconds. Unset or empty yields the zero time.
func getEnvAsUnixTime(key string) (time.Time, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse unix seconds %q: %w", raw, err)
	}
	if secs <= 0 {
		return time.Time{}, fmt.Errorf("unix seconds must be positive, got %d", secs)
	}
	return time.Unix(secs, 0), nil
}

func getEnvAsCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
