package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/devrev/cryptgate/internal/model"
)

// Config represents the gateway service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Service    ServiceConfig    `mapstructure:"service"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents the API server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ServiceConfig identifies this process and its permitted operations
type ServiceConfig struct {
	ID   string            `mapstructure:"id"`
	Role model.ServiceRole `mapstructure:"role"`
}

// EncryptionConfig holds key-derivation parameters
type EncryptionConfig struct {
	Salt string `mapstructure:"salt"`
}

// BackendConfig describes the backend storage tier and its routing strategy
type BackendConfig struct {
	Strategy            model.Strategy          `mapstructure:"strategy"`
	Instances           []model.BackendInstance `mapstructure:"instances"`
	HealthCheckInterval time.Duration           `mapstructure:"health_check_interval"`
}

// SnapshotConfig controls the durable snapshot cache
type SnapshotConfig struct {
	Dir       string        `mapstructure:"dir"`
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// AlertConfig controls emergency staleness alerting
type AlertConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	Threshold     time.Duration `mapstructure:"threshold"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// BatchConfig bounds batch operation concurrency
type BatchConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration. A missing backend instance list is a
// fatal startup condition, never runtime-recoverable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Service.ID == "" {
		return errors.New("service.id is required")
	}
	if !c.Service.Role.Valid() {
		return fmt.Errorf("service.role must be one of: encrypt, decrypt, mixed (got %q)", c.Service.Role)
	}
	if c.Encryption.Salt == "" {
		return errors.New("encryption.salt is required")
	}
	if !c.Backend.Strategy.Valid() {
		return fmt.Errorf("backend.strategy must be one of: single, read_write_split, load_balance (got %q)", c.Backend.Strategy)
	}
	if len(c.Backend.Instances) == 0 {
		return errors.New("backend.instances must not be empty")
	}

	seen := make(map[string]bool, len(c.Backend.Instances))
	for i, inst := range c.Backend.Instances {
		if inst.ID == "" {
			return fmt.Errorf("backend.instances[%d].id is required", i)
		}
		if seen[inst.ID] {
			return fmt.Errorf("backend.instances[%d].id %q is duplicated", i, inst.ID)
		}
		seen[inst.ID] = true
		if inst.URL == "" {
			return fmt.Errorf("backend.instances[%d].url is required", i)
		}
		if !inst.Role.Valid() {
			return fmt.Errorf("backend.instances[%d].role must be one of: read, write, mixed (got %q)", i, inst.Role)
		}
	}

	return c.validateStrategy()
}

// validateStrategy applies per-strategy instance distribution rules
func (c *Config) validateStrategy() error {
	switch c.Backend.Strategy {
	case model.StrategySingle:
		if len(c.Backend.Instances) != 1 {
			return errors.New("single strategy requires exactly one backend instance")
		}
	case model.StrategyReadWriteSplit:
		hasWrite, hasRead := false, false
		for _, inst := range c.Backend.Instances {
			if inst.Role.Serves(model.RoleWrite) {
				hasWrite = true
			}
			if inst.Role.Serves(model.RoleRead) {
				hasRead = true
			}
		}
		if !hasWrite {
			return errors.New("read_write_split strategy requires at least one write or mixed instance")
		}
		if !hasRead {
			return errors.New("read_write_split strategy requires at least one read or mixed instance")
		}
	case model.StrategyLoadBalance:
		// Any non-empty instance list works; roles are checked per operation
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			HealthPort:      8081,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Service: ServiceConfig{
			ID:   "cryptgate-1",
			Role: model.ServiceMixed,
		},
		Encryption: EncryptionConfig{
			Salt: "",
		},
		Backend: BackendConfig{
			Strategy:            model.StrategySingle,
			HealthCheckInterval: 30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Dir:       "data/snapshots",
			Interval:  time.Hour,
			Retention: 24 * time.Hour,
		},
		Alert: AlertConfig{
			Threshold:     48 * time.Hour,
			CheckInterval: time.Hour,
		},
		Batch: BatchConfig{
			MaxWorkers: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
