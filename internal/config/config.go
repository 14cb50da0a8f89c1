package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Ordering strategies for webhook notifications.
const (
	OrderingLastWriteWins = "last-write-wins"
	OrderingMemory        = "memory"
	OrderingRedis         = "redis"
)

type Config struct {
	// Server configuration
	Port            string        `envconfig:"PORT" default:"8080"`
	Mode            string        `envconfig:"GIN_MODE" default:"debug"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Database configuration. An empty DATABASE_URL falls back to SQLite.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"entitlement-api.db"`

	// Redis configuration, only dialed when ORDERING_STRATEGY=redis
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// App Store configuration
	AppleRootCertPaths     []string `envconfig:"APPLE_ROOT_CERT_PATHS" default:"certs/AppleRootCA-G3.cer"`
	SubscriptionProductIDs []string `envconfig:"SUBSCRIPTION_PRODUCT_IDS" default:""`
	OrderingStrategy       string   `envconfig:"ORDERING_STRATEGY" default:"last-write-wins"`
	// Signed payloads naming another bundle or environment are rejected.
	// Empty accepts any.
	AppBundleID      string `envconfig:"APP_BUNDLE_ID" default:""`
	AppleEnvironment string `envconfig:"APPLE_ENVIRONMENT" default:""`

	// Logging
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.OrderingStrategy {
	case OrderingLastWriteWins, OrderingMemory, OrderingRedis:
	default:
		return fmt.Errorf("unknown ORDERING_STRATEGY %q", c.OrderingStrategy)
	}
	switch c.AppleEnvironment {
	case "", "Sandbox", "Production":
	default:
		return fmt.Errorf("unknown APPLE_ENVIRONMENT %q", c.AppleEnvironment)
	}
	if len(c.AppleRootCertPaths) == 0 {
		return fmt.Errorf("APPLE_ROOT_CERT_PATHS is empty")
	}
	return nil
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return c.Mode == "release"
}
