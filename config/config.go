package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/* Process configuration
 * Values come from an optional .env file (toml) in the working directory,
 * overridden by environment variables of the same name.
 */

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Port                    string `mapstructure:"PORT"`
	Store                   string `mapstructure:"STORE"`
	RateLimiter             string `mapstructure:"RATE_LIMITER"`
	RedisAddr               string `mapstructure:"REDIS_ADDR"`
	RedisPassword           string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                 int    `mapstructure:"REDIS_DB"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	ProvidersFile           string `mapstructure:"PROVIDERS_FILE"`
	Workers                 int    `mapstructure:"WORKERS"`
	QueueSize               int    `mapstructure:"QUEUE_SIZE"`
	HandlerTimeoutSeconds   int    `mapstructure:"HANDLER_TIMEOUT_SECONDS"`
	DedupTTLHours           int    `mapstructure:"DEDUP_TTL_HOURS"`
	ProductionMode          bool   `mapstructure:"PRODUCTION_MODE"`
	DefaultToleranceSeconds int    `mapstructure:"DEFAULT_TOLERANCE_SECONDS"`
	MaxBodyBytes            int64  `mapstructure:"MAX_BODY_BYTES"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"STORE":                     StoreMemory,
	"RATE_LIMITER":              StoreMemory,
	"REDIS_ADDR":                "localhost:6379",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"DATABASE_URL":              "",
	"PROVIDERS_FILE":            "providers.yaml",
	"WORKERS":                   8,
	"QUEUE_SIZE":                1024,
	"HANDLER_TIMEOUT_SECONDS":   30,
	"DEDUP_TTL_HOURS":           72,
	"PRODUCTION_MODE":           false,
	"DEFAULT_TOLERANCE_SECONDS": 300,
	"MAX_BODY_BYTES":            10 << 20,
}

func GetConfig() (*Config, error) {
	return Load(viper.New(), ".")
}

// Load reads configuration through v, looking for .env in path
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(path)
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}

	config.Store = strings.ToLower(strings.TrimSpace(config.Store))
	config.RateLimiter = strings.ToLower(strings.TrimSpace(config.RateLimiter))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values that have no safe fallback
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE %q (want memory, redis or postgres)", c.Store)
	}

	switch c.RateLimiter {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown RATE_LIMITER %q (want memory or redis)", c.RateLimiter)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE cannot be negative")
	}
	if c.DefaultToleranceSeconds < 0 {
		return fmt.Errorf("DEFAULT_TOLERANCE_SECONDS cannot be negative")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Store == StoreRedis || c.RateLimiter == StoreRedis
}

// HandlerTimeout returns the per-attempt handler timeout
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}

// DedupTTL returns how long Redis keeps event keys; zero keeps them forever
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLHours) * time.Hour
}
