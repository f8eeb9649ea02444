// Package config handles application configuration from environment
// variables and the rule-set file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	Port        string
	MetricsPort string
	Env         string // "development", "staging", "production"
	LogLevel    string

	// Stores. Both are optional: without them the engine runs on the
	// in-memory implementations.
	DatabaseURL string // PostgreSQL connection string
	RedisAddr   string // Redis address for the velocity window

	// Scoring
	RulesPath      string // JSON rule-set file; built-in defaults when empty
	AlertThreshold int

	// Security
	SigningSecret string // HMAC secret for request signatures (optional)
}

const (
	DefaultPort           = "8080"
	DefaultMetricsPort    = "9090"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultAlertThreshold = 50
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		MetricsPort:    getEnv("METRICS_PORT", DefaultMetricsPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RulesPath:      os.Getenv("RULES_PATH"),
		AlertThreshold: getEnvInt("ALERT_THRESHOLD", DefaultAlertThreshold),
		SigningSecret:  os.Getenv("SIGNING_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AlertThreshold <= 0 || c.AlertThreshold > 100 {
		return fmt.Errorf("ALERT_THRESHOLD must be in (0, 100], got %d", c.AlertThreshold)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
