package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger backends.
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// Overview sources for the dashboard.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience. MaxRetries is 0 unless set: a failed ledger fetch is
	// reported to the caller after one attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration
	RedisURL string

	// Observability
	OTLPEndpoint string

	// Ledger backend
	LedgerBackend string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// SQLite
	SQLiteDBPath string

	// AMQP (anomaly events); empty URL disables publishing
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Overview source for the dashboard
	OverviewSource     string
	RemoteAnalyticsURL string

	// Conversational agent; empty disables the assistant route
	AssistantURL string

	// JWT / Auth
	JWTSecret    string
	JWTAccessTTL time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 0),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", time.Minute),
		RedisURL: getEnv("REDIS_URL", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", BackendSupabase)),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "ledger.anomalies"),

		OverviewSource:     strings.ToLower(getEnv("OVERVIEW_SOURCE", SourceLocal)),
		RemoteAnalyticsURL: getEnv("REMOTE_ANALYTICS_URL", ""),

		AssistantURL: getEnv("ASSISTANT_API_URL", ""),

		JWTSecret:    getEnv("JWT_SECRET", "bfa-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", time.Hour),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	switch c.LedgerBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLITE_DB_PATH cannot be empty when using the sqlite backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid ledger backend '%s': must be one of [%s %s]", c.LedgerBackend, BackendSupabase, BackendSQLite))
	}

	switch c.OverviewSource {
	case SourceLocal:
	case SourceRemote:
		// an empty URL is allowed; overview calls then answer "not configured"
		if c.RemoteAnalyticsURL != "" {
			if u, err := url.Parse(c.RemoteAnalyticsURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				problems = append(problems, fmt.Sprintf("invalid REMOTE_ANALYTICS_URL '%s': must be an http(s) URL", c.RemoteAnalyticsURL))
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid overview source '%s': must be one of [%s %s]", c.OverviewSource, SourceLocal, SourceRemote))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AssistantURL != "" {
		if u, err := url.Parse(c.AssistantURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			problems = append(problems, fmt.Sprintf("invalid ASSISTANT_API_URL '%s': must be an http(s) URL", c.AssistantURL))
		}
	}

	if c.MaxRetries < 0 {
		problems = append(problems, "MAX_RETRIES cannot be negative")
	}
	if c.JWTAccessTTL <= 0 {
		problems = append(problems, "JWT_ACCESS_TTL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
