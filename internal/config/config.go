package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Stripe hosted checkout configuration
	Stripe StripeConfig

	// Redis stream used to fan out domain events
	Redis RedisConfig

	// Domain event publishing
	Events EventsConfig

	// Pending payment reconciliation job
	Reconciliation ReconciliationConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string
	Environment   string // development, staging, production
	LogLevel      string // debug, info, warn, error
	PublicBaseURL string // Base URL used to build checkout redirect links
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// StripeConfig holds hosted checkout configuration
type StripeConfig struct {
	SecretKey      string // SECRET - never expose to client
	PublishableKey string
	Currency       string // ISO currency code, lower case
	Timeout        time.Duration
}

// RedisConfig holds the event stream connection
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// EventsConfig controls the transactional outbox. Events are always written to
// the outbox table; Enabled only switches forwarding and consumers.
type EventsConfig struct {
	Enabled       bool
	ConsumerGroup string
}

// ReconciliationConfig controls the pending payment sweep
type ReconciliationConfig struct {
	Enabled   bool
	Schedule  string        // cron expression with seconds
	MinAge    time.Duration // pending payments younger than this are left alone
	BatchSize int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Environment:   getEnv("ENVIRONMENT", "development"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			Currency:       strings.ToLower(getEnv("STRIPE_CURRENCY", "inr")),
			Timeout:        time.Duration(getEnvAsInt("STRIPE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Enabled:       getEnvAsBool("EVENTS_ENABLED", true),
			ConsumerGroup: getEnv("EVENTS_CONSUMER_GROUP", "tour-booking"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:   getEnvAsBool("RECONCILIATION_ENABLED", true),
			Schedule:  getEnv("RECONCILIATION_SCHEDULE", "0 */10 * * * *"),
			MinAge:    time.Duration(getEnvAsInt("RECONCILIATION_MIN_AGE_MINUTES", 15)) * time.Minute,
			BatchSize: getEnvAsInt("RECONCILIATION_BATCH_SIZE", 50),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Correlation-ID"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	// Checkout cannot work without a key, but local development can run without one
	if c.Server.Environment == "production" {
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}
		if strings.HasPrefix(c.Stripe.SecretKey, "sk_test_") {
			return fmt.Errorf("STRIPE_SECRET_KEY must be a live key in production")
		}
	}

	if c.Stripe.Currency == "" {
		return fmt.Errorf("STRIPE_CURRENCY must not be empty")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED is true")
	}

	return nil
}

// EventStreamEnabled reports whether outbox events are forwarded to Redis streams
func (c *Config) EventStreamEnabled() bool {
	return c.Events.Enabled && c.Redis.Enabled
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
