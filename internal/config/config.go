package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	App       AppConfig
	Affiliate AffiliateConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Log       LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file path
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	FrontendURL string
	InternalKey string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name      string
	JWTSecret string
	TokenTTL  time.Duration
}

// AffiliateConfig holds the affiliate program parameters
type AffiliateConfig struct {
	CodePrefix       string
	CommissionRate   decimal.Decimal
	PayoutThreshold  decimal.Decimal
	ClickDedupWindow time.Duration
}

// RedisConfig holds the Redis settings shared by the task queue and the click throttle
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WorkerConfig holds settings of the conversion worker process
type WorkerConfig struct {
	Concurrency int
	MetricsPort string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string
	Encoding string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	commissionRate, err := getEnvDecimal("AFFILIATE_COMMISSION_RATE", "0.20")
	if err != nil {
		return nil, err
	}
	payoutThreshold, err := getEnvDecimal("AFFILIATE_PAYOUT_THRESHOLD", "50.00")
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "affiliates"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "affiliates.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			InternalKey: getEnv("INTERNAL_API_KEY", ""),
		},
		App: AppConfig{
			Name:      getEnv("APP_NAME", "affiliate-service"),
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvDuration("JWT_TTL", 7*24*time.Hour),
		},
		Affiliate: AffiliateConfig{
			CodePrefix:       strings.ToUpper(getEnv("AFFILIATE_CODE_PREFIX", "REF")),
			CommissionRate:   commissionRate,
			PayoutThreshold:  payoutThreshold,
			ClickDedupWindow: getEnvDuration("AFFILIATE_CLICK_DEDUP_WINDOW", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
			MetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Affiliate.CommissionRate.IsNegative() || c.Affiliate.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("AFFILIATE_COMMISSION_RATE must be between 0 and 1, got %s", c.Affiliate.CommissionRate)
	}
	if c.Affiliate.PayoutThreshold.IsNegative() {
		return fmt.Errorf("AFFILIATE_PAYOUT_THRESHOLD must not be negative")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Affiliate.CodePrefix == "" {
		return fmt.Errorf("AFFILIATE_CODE_PREFIX must not be empty")
	}
	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}
