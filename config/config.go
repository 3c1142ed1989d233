package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	ProviderLive = "live"
	ProviderStub = "stub"

	ModeBackground = "background"
	ModeSequential = "sequential"
)

// ProviderConfig configures one remote AI provider. An empty APIKey or
// BaseURL leaves the provider unconfigured, which is a valid state.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" && p.BaseURL != ""
}

// RabbitMQConfig holds the message bus settings. Publishing is disabled
// when Host is empty.
type RabbitMQConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
}

func (r RabbitMQConfig) Enabled() bool {
	return r.Host != ""
}

// GetAMQPURL returns the AMQP connection URL.
func (r RabbitMQConfig) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

// Config holds all configuration for the report service
type Config struct {
	// Server configuration
	Port     string
	LogLevel string

	// Storage configuration
	StorageBackend string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string

	// Provider configuration
	LLMProvider       string
	OrchestrationMode string
	ProviderTimeout   time.Duration
	Classifier        ProviderConfig
	Enricher          ProviderConfig

	ImageCompress bool

	// Stats cache
	RedisURL      string
	StatsCacheTTL time.Duration

	RabbitMQ RabbitMQConfig

	// Submission rate limit per client IP
	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string

	// Proxies whose X-Forwarded-For is honored; empty trusts none.
	TrustedProxies []string
}

// Load loads configuration from an optional .env file and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	config := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageMySQL),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", "server"),
		DBPassword:     getEnv("DB_PASSWORD", "secret"),
		DBName:         getEnv("DB_NAME", "civiclens"),

		LLMProvider:       getEnv("LLM_PROVIDER", ProviderLive),
		OrchestrationMode: getEnv("ORCHESTRATION_MODE", ModeBackground),
		ProviderTimeout:   getDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		Classifier: ProviderConfig{
			APIKey:  getEnv("FEATHERLESS_API_KEY", ""),
			BaseURL: getEnv("FEATHERLESS_BASE_URL", ""),
			Model:   getEnv("FEATHERLESS_MODEL", "llava-1.5-7b-hf"),
		},
		Enricher: ProviderConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},

		ImageCompress: getBoolEnv("IMAGE_COMPRESS", true),

		RedisURL:      getEnv("REDIS_URL", ""),
		StatsCacheTTL: getDurationEnv("STATS_CACHE_TTL", 60*time.Second),

		RabbitMQ: RabbitMQConfig{
			Host:       getEnv("AMQP_HOST", ""),
			Port:       getEnv("AMQP_PORT", "5672"),
			User:       getEnv("AMQP_USER", "guest"),
			Password:   getEnv("AMQP_PASSWORD", "guest"),
			Exchange:   getEnv("AMQP_EXCHANGE", "civiclens"),
			RoutingKey: getEnv("AMQP_REPORT_ROUTING_KEY", "report.events"),
		},

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 5),

		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", "*"),
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES", ""),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated string environment variable and returns it as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
