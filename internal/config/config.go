package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store type constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Device cache backend constants
const (
	DeviceCacheMemory = "memory"
	DeviceCacheRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Token signing settings
	TokenSecret string
	TokenTTL    time.Duration

	// Flash request settings
	PaymentWindow  time.Duration // how long a pending/paid request may wait before expiry
	SweepInterval  time.Duration // how often the background sweep runs
	DefaultPrice   int64         // fallback price in sats when no setting is stored
	DeviceTypes    []string      // configured device types, e.g. "NerdQX,NerdAxe"
	FirmwareDir    string        // root directory holding one subdirectory per device type
	DeviceCacheTTL time.Duration // how long the public device listing may be served from cache

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// LNbits payment collaborator
	LNbitsURL                string
	LNbitsAPIKey             string
	LNbitsTimeout            time.Duration
	LNbitsInsecureSkipVerify bool
	LNbitsMaxRetries         int
	LNbitsRetryDelay         time.Duration
	LNbitsMaxRetryDelay      time.Duration
	InvoiceExpiry            time.Duration // expiry window reported on created invoices

	// Admin API
	AdminAPIKey string

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Rate limiting and caching
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitStore     string // "memory" or "redis"
	DeviceCacheBackend string // "memory" or "redis"
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	IsProduction bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "tnaflasher.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		TokenSecret: getEnv("TOKEN_SECRET", "change-this-secret-in-production"),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 5*time.Minute),

		PaymentWindow:  getEnvDuration("PAYMENT_WINDOW", 15*time.Minute),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", time.Minute),
		DefaultPrice:   int64(getEnvInt("DEFAULT_PRICE_SATS", 5000)),
		DeviceTypes:    getEnvSlice("DEVICE_TYPES", []string{"NerdQX", "NerdAxe"}),
		FirmwareDir:    getEnv("FIRMWARE_DIR", "firmware"),
		DeviceCacheTTL: getEnvDuration("DEVICE_CACHE_TTL", 30*time.Second),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		LNbitsURL:                getEnv("LNBITS_URL", "http://localhost:5000"),
		LNbitsAPIKey:             getEnv("LNBITS_API_KEY", ""),
		LNbitsTimeout:            getEnvDuration("LNBITS_TIMEOUT", 10*time.Second),
		LNbitsInsecureSkipVerify: getEnvBool("LNBITS_INSECURE_SKIP_VERIFY", false),
		LNbitsMaxRetries:         getEnvInt("LNBITS_MAX_RETRIES", 3),
		LNbitsRetryDelay:         getEnvDuration("LNBITS_RETRY_DELAY", time.Second),
		LNbitsMaxRetryDelay:      getEnvDuration("LNBITS_MAX_RETRY_DELAY", 10*time.Second),
		InvoiceExpiry:            getEnvDuration("INVOICE_EXPIRY", 15*time.Minute),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		DeviceCacheBackend: getEnv("DEVICE_CACHE_BACKEND", DeviceCacheMemory),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		IsProduction: getEnvBool("PRODUCTION", false),
	}
}

// Validate checks that the configuration is usable for serving paid downloads.
func (c *Config) Validate() error {
	if c.IsProduction && c.TokenSecret == "change-this-secret-in-production" {
		return fmt.Errorf("TOKEN_SECRET must be changed in production")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be positive")
	}
	if len(c.DeviceTypes) == 0 {
		return fmt.Errorf("DEVICE_TYPES must list at least one device type")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for postgres")
	}
	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf("unsupported rate limit store: %s", c.RateLimitStore)
	}
	if c.DeviceCacheBackend != DeviceCacheMemory && c.DeviceCacheBackend != DeviceCacheRedis {
		return fmt.Errorf("unsupported device cache backend: %s", c.DeviceCacheBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
