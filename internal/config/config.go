package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"myfinances/internal/core"
)

type Config struct {
	// Finance API
	APIBaseURL    string
	APIUsername   string
	APIPassword   string
	APITimeout    time.Duration
	APIRateLimit  float64 // requests per second, 0 disables limiting
	APICacheTTL   time.Duration
	TokenLifetime time.Duration

	// Exchange rates
	RatesBaseURL         string
	RatesAPIKey          string
	RatesBaseCurrency    core.CurrencyCode
	RatesFreshness       time.Duration
	RatesRetryInterval   time.Duration
	RatesRefreshInterval time.Duration

	// Local state
	StateBackend       string
	StateDBPath        string
	SecureStoreKey     string // passphrase; when empty a random key file is used
	SecureStoreKeyFile string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel string
	LogFile  string

	// Background sweep of expired entries
	SweepInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		APIBaseURL:    getEnv("API_BASE_URL", ""),
		APIUsername:   getEnv("API_USERNAME", ""),
		APIPassword:   getEnv("API_PASSWORD", ""),
		APITimeout:    getEnvDuration("API_TIMEOUT", 15*time.Second),
		APIRateLimit:  getEnvFloat("API_RATE_LIMIT", 5),
		APICacheTTL:   getEnvDuration("API_CACHE_TTL", time.Minute),
		TokenLifetime: getEnvDuration("SESSION_TOKEN_LIFETIME", 30*time.Minute),

		RatesBaseURL:         getEnv("RATES_BASE_URL", "https://v6.exchangerate-api.com/v6"),
		RatesAPIKey:          getEnv("RATES_API_KEY", ""),
		RatesBaseCurrency:    core.CurrencyCode(strings.ToUpper(getEnv("RATES_BASE_CURRENCY", "EUR"))),
		RatesFreshness:       getEnvDuration("RATES_FRESHNESS", time.Hour),
		RatesRetryInterval:   getEnvDuration("RATES_RETRY_INTERVAL", 5*time.Minute),
		RatesRefreshInterval: getEnvDuration("RATES_REFRESH_INTERVAL", 10*time.Minute),

		StateBackend:       getEnv("STATE_BACKEND", "sqlite"),
		StateDBPath:        getEnv("STATE_DB_PATH", "./data/myfinances.db"),
		SecureStoreKey:     getEnv("SECURE_STORE_KEY", ""),
		SecureStoreKeyFile: getEnv("SECURE_STORE_KEY_FILE", "./data/secure.key"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "myfinances"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "rates_updated"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Finance API
	if c.APIBaseURL == "" {
		errors = append(errors, "API_BASE_URL is required")
	} else if err := validateHTTPURL(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	}
	if c.APIUsername == "" || c.APIPassword == "" {
		errors = append(errors, "API_USERNAME and API_PASSWORD are required")
	}
	if c.APITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 1 second", c.APITimeout))
	}
	if c.APIRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid API rate limit %v: must not be negative", c.APIRateLimit))
	}
	if c.APICacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid API cache TTL %v: must not be negative", c.APICacheTTL))
	}
	if c.TokenLifetime < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token lifetime %v: must be at least 1 minute", c.TokenLifetime))
	} else if c.TokenLifetime > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid token lifetime %v: must be at most 24 hours", c.TokenLifetime))
	}

	// Exchange rates. A missing API key is allowed: the fallback table is used.
	if err := validateHTTPURL(c.RatesBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid rates base URL '%s': %v", c.RatesBaseURL, err))
	}
	if _, err := core.ParseCurrencyCode(string(c.RatesBaseCurrency)); err != nil || c.RatesBaseCurrency == core.Other {
		errors = append(errors, fmt.Sprintf("invalid base currency '%s'", c.RatesBaseCurrency))
	}
	if c.RatesFreshness < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates freshness %v: must be at least 1 minute", c.RatesFreshness))
	}
	if c.RatesRetryInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid rates retry interval %v: must not be negative", c.RatesRetryInterval))
	}
	if c.RatesRefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be at least 1 second", c.RatesRefreshInterval))
	}

	// State backend
	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.StateBackend) {
		errors = append(errors, fmt.Sprintf("invalid state backend '%s': must be one of %v", c.StateBackend, validBackends))
	}
	if c.StateBackend == "sqlite" {
		if c.StateDBPath == "" {
			errors = append(errors, "state database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.StateDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create state database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}
	if c.SecureStoreKey != "" && len(c.SecureStoreKey) < 16 {
		errors = append(errors, "secure store key must be at least 16 characters")
	}
	if c.SecureStoreKey == "" && c.SecureStoreKeyFile == "" {
		errors = append(errors, "either SECURE_STORE_KEY or SECURE_STORE_KEY_FILE must be provided")
	}

	// AMQP
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Logging
	if _, err := c.SlogLevel(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.SweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 second", c.SweepInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel)
	}
	return l, nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be 'http' or 'https'")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
