package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/devrev/cryptgate/internal/model"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	// Server configuration
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Service identity
	if id := os.Getenv("SERVICE_ID"); id != "" {
		cfg.Service.ID = id
	}
	if role := os.Getenv("SERVICE_ROLE"); role != "" {
		cfg.Service.Role = model.ServiceRole(role)
	}

	// Encryption
	if salt := os.Getenv("ENCRYPTION_SALT"); salt != "" {
		cfg.Encryption.Salt = salt
	}

	// Backend
	if interval := os.Getenv("BACKEND_HEALTH_CHECK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Backend.HealthCheckInterval = d
		}
	}

	// Alerting
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		cfg.Alert.WebhookURL = url
	}

	// Logging configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
