package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Outbox        OutboxConfig
	Observability *ObservabilityConfig
	Paystack      PaystackConfig
	Auth          AuthConfig
	Fees          FeeConfig
	RateLimit     RateLimitConfig
}

type PrimaryConfig struct {
	Env string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

// DSN renders the connection string understood by pgx and lib/pq.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// OutboxConfig tunes the relay that moves transaction_outbox rows to Kafka.
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	Logging      LoggingConfig
	NewRelic     NewRelicConfig
	HealthChecks HealthChecksConfig
}

type LoggingConfig struct {
	Level              string
	Format             string
	SlowQueryThreshold time.Duration
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

type HealthChecksConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Checks   []string
}

type PaystackConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	CallbackURL   string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// FeeConfig holds percentages as decimals (10 means 10%) and amounts in minor units.
type FeeConfig struct {
	PlatformPercent   decimal.Decimal
	WithdrawalPercent decimal.Decimal
	WithdrawalMinimum int64
}

type RateLimitConfig struct {
	Requests int64
	Window   time.Duration
}

// Helper functions for parsing env vars
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("ESCROW_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("ESCROW_DB_HOST", "localhost"),
			Port:            getEnvInt("ESCROW_DB_PORT", 5432),
			User:            getEnv("ESCROW_DB_USER", "escrow"),
			Password:        getEnv("ESCROW_DB_PASSWORD", ""),
			Name:            getEnv("ESCROW_DB_NAME", "escrow"),
			SSLMode:         getEnv("ESCROW_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("ESCROW_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("ESCROW_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("ESCROW_DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("ESCROW_DB_CONN_MAX_IDLE_TIME", 60),
		},
		Server: ServerConfig{
			Port:               getEnv("ESCROW_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("ESCROW_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("ESCROW_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("ESCROW_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("ESCROW_SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Address:      getEnv("ESCROW_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("ESCROW_REDIS_PASSWORD", ""),
			DB:           getEnvInt("ESCROW_REDIS_DB", 0),
			PoolSize:     getEnvInt("ESCROW_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("ESCROW_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("ESCROW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("ESCROW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("ESCROW_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("ESCROW_REDIS_LOCK_TTL", 30*time.Second),
			KeyPrefix:    getEnv("ESCROW_REDIS_KEY_PREFIX", "escrow:"),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Escrow",
			Environment: getEnv("ESCROW_ENV", "development"),
			Logging: LoggingConfig{
				Level:              getEnv("ESCROW_LOG_LEVEL", "debug"),
				Format:             getEnv("ESCROW_LOG_FORMAT", "console"),
				SlowQueryThreshold: getEnvDuration("ESCROW_LOG_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("ESCROW_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("ESCROW_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("ESCROW_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("ESCROW_NEWRELIC_DEBUG", false),
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  getEnvBool("ESCROW_HEALTHCHECK_ENABLED", true),
				Interval: getEnvDuration("ESCROW_HEALTHCHECK_INTERVAL", 30*time.Second),
				Timeout:  getEnvDuration("ESCROW_HEALTHCHECK_TIMEOUT", 5*time.Second),
				Checks:   getEnvSlice("ESCROW_HEALTHCHECK_CHECKS", []string{"database", "redis"}),
			},
		},
		Paystack: PaystackConfig{
			SecretKey:     getEnv("ESCROW_PAYSTACK_SECRET_KEY", ""),
			PublicKey:     getEnv("ESCROW_PAYSTACK_PUBLIC_KEY", ""),
			WebhookSecret: getEnv("ESCROW_PAYSTACK_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("ESCROW_PAYSTACK_BASE_URL", "https://api.paystack.co"),
			Timeout:       getEnvDuration("ESCROW_PAYSTACK_TIMEOUT", 10*time.Second),
			CallbackURL:   getEnv("ESCROW_PAYSTACK_CALLBACK_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvSlice("ESCROW_KAFKA_BROKERS", []string{"localhost:9092"}),
			ConsumerGroup: getEnv("ESCROW_KAFKA_CONSUMER_GROUP", "escrow-workers"),
		},
		Outbox: OutboxConfig{
			BatchSize:    getEnvInt("ESCROW_OUTBOX_BATCH_SIZE", 100),
			PollInterval: getEnvDuration("ESCROW_OUTBOX_POLL_INTERVAL", time.Second),
			MaxRetries:   getEnvInt("ESCROW_OUTBOX_MAX_RETRIES", 10),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("ESCROW_AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("ESCROW_AUTH_ISSUER", ""),
		},
		Fees: FeeConfig{
			PlatformPercent:   getEnvDecimal("ESCROW_FEE_PLATFORM_PERCENT", decimal.NewFromInt(10)),
			WithdrawalPercent: getEnvDecimal("ESCROW_FEE_WITHDRAWAL_PERCENT", decimal.NewFromInt(1)),
			WithdrawalMinimum: getEnvInt64("ESCROW_FEE_WITHDRAWAL_MINIMUM", 100),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt64("ESCROW_RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvDuration("ESCROW_RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("ESCROW_DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("ESCROW_DB_NAME is required")
	}
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var hundred = decimal.NewFromInt(100)

func (c FeeConfig) Validate() error {
	if c.PlatformPercent.IsNegative() || c.PlatformPercent.GreaterThan(hundred) {
		return fmt.Errorf("ESCROW_FEE_PLATFORM_PERCENT must be between 0 and 100, got %s", c.PlatformPercent)
	}
	if c.WithdrawalPercent.IsNegative() || c.WithdrawalPercent.GreaterThan(hundred) {
		return fmt.Errorf("ESCROW_FEE_WITHDRAWAL_PERCENT must be between 0 and 100, got %s", c.WithdrawalPercent)
	}
	if c.WithdrawalMinimum < 0 {
		return fmt.Errorf("ESCROW_FEE_WITHDRAWAL_MINIMUM must not be negative")
	}
	return nil
}
