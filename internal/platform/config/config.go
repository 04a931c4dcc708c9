package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings backends selectable with SETTINGS_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// DefaultVerifyURL is Cloudflare's Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Server captures process level configuration.
type Server struct {
	Addr              string `validate:"required"`
	AdminToken        string
	TrustProxyHeaders bool
	Log               LogConfig
	Settings          SettingsConfig
	Redis             RedisConfig
	Postgres          PostgresConfig
	Turnstile         TurnstileConfig
	Audit             AuditConfig
	Signup            SignupConfig
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// SettingsConfig selects where plugin settings live. Seed values are written to
// the memory backend at startup so a fresh process has a usable configuration.
type SettingsConfig struct {
	Backend  string `validate:"oneof=memory redis postgres file"`
	File     string
	RedisKey string `validate:"required"`
	Seed     SeedSettings
}

// SeedSettings mirror the three plugin options. Empty strings mean "not provided".
type SeedSettings struct {
	Enabled   string
	SiteKey   string
	SecretKey string
}

// RedisConfig holds connection tuning for the Redis settings backend.
type RedisConfig struct {
	URL          string
	PoolSize     int           `validate:"gte=0"`
	MinIdleConns int           `validate:"gte=0"`
	DialTimeout  time.Duration `validate:"gte=0"`
	ReadTimeout  time.Duration `validate:"gte=0"`
	WriteTimeout time.Duration `validate:"gte=0"`
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int           `validate:"gte=0"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

// TurnstileConfig bounds the outbound siteverify call.
type TurnstileConfig struct {
	VerifyURL string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gt=0"`
}

// AuditConfig routes audit events to Kafka when brokers are set, to the
// audit_events table when Postgres is enabled, otherwise in memory.
type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string `validate:"required"`
	Postgres     bool
	BufferSize   int `validate:"gte=0"`
	// OpsSampleRate is the share of operations-category events kept.
	OpsSampleRate float64 `validate:"gte=0,lte=1"`
}

// SignupConfig drives the host's own admission result before plugins run.
type SignupConfig struct {
	Enabled             bool
	AllowedEmailDomains []string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FromEnv builds a Server config from environment variables, loading a .env file
// first when present. Variables already set in the environment win over .env.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Server{
		Addr:              getEnv("SIGNUPGATE_ADDR", ":8080"),
		AdminToken:        os.Getenv("ADMIN_API_TOKEN"),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Settings: SettingsConfig{
			Backend:  strings.ToLower(getEnv("SETTINGS_BACKEND", BackendMemory)),
			File:     os.Getenv("SETTINGS_FILE"),
			RedisKey: getEnv("SETTINGS_REDIS_KEY", "signupgate:plugin:turnstile:settings"),
			Seed: SeedSettings{
				Enabled:   os.Getenv("TURNSTILE_ENABLED"),
				SiteKey:   os.Getenv("TURNSTILE_SITE_KEY"),
				SecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),
			},
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Turnstile: TurnstileConfig{
			VerifyURL: getEnv("TURNSTILE_VERIFY_URL", DefaultVerifyURL),
			Timeout:   getEnvDuration("TURNSTILE_VERIFY_TIMEOUT", 5*time.Second),
		},
		Audit: AuditConfig{
			KafkaBrokers:  getEnvList("AUDIT_KAFKA_BROKERS"),
			KafkaTopic:    getEnv("AUDIT_KAFKA_TOPIC", "signupgate.audit"),
			Postgres:      getEnvBool("AUDIT_POSTGRES", false),
			BufferSize:    getEnvInt("AUDIT_BUFFER_SIZE", 1024),
			OpsSampleRate: getEnvFloat("AUDIT_OPS_SAMPLE_RATE", 1),
		},
		Signup: SignupConfig{
			Enabled:             getEnvBool("SIGNUP_ENABLED", true),
			AllowedEmailDomains: getEnvList("SIGNUP_ALLOWED_EMAIL_DOMAINS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the cross-field requirements of the
// selected settings backend.
func (c Server) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Settings.Backend {
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("invalid configuration: REDIS_URL is required for the redis settings backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("invalid configuration: DATABASE_URL is required for the postgres settings backend")
		}
	case BackendFile:
		if c.Settings.File == "" {
			return errors.New("invalid configuration: SETTINGS_FILE is required for the file settings backend")
		}
	}
	if c.Audit.Postgres && c.Postgres.DSN == "" {
		return errors.New("invalid configuration: DATABASE_URL is required when AUDIT_POSTGRES is set")
	}
	if c.Settings.Seed.Enabled != "" {
		if _, err := strconv.ParseBool(c.Settings.Seed.Enabled); err != nil {
			return fmt.Errorf("invalid configuration: TURNSTILE_ENABLED: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
