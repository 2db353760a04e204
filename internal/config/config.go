// Package config provides worker configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds courier worker configuration.
type Config struct {
	// Broker: connect to NATS at BrokerURL.
	BrokerURL   string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"courier"`

	// JetStream stream holding the routing-key subjects, and the queue group
	// consumers join so each delivery reaches one worker.
	Stream     string `envconfig:"COURIER_STREAM" default:"COURIER"`
	QueueGroup string `envconfig:"COURIER_QUEUE_GROUP" default:"courier-workers"`

	// Per-delivery dispatch deadline; a handler exceeding it has its context
	// cancelled and the delivery rejected.
	DispatchTimeout time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"30s"`

	// Contract file declaring message types, actions, and version ranges.
	ContractFile string `envconfig:"COURIER_CONTRACT_FILE"`

	// Failure journal; empty DATABASE_URL disables journaling.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`

	// HTTP health endpoint (COURIER_HTTP_ADDR preferred, e.g. "0.0.0.0:8080").
	HTTPAddr string `envconfig:"COURIER_HTTP_ADDR"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the worker.
func (c *Config) ValidateForServe() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.Stream == "" {
		return fmt.Errorf("%s - COURIER_STREAM is required for serve", logPrefix)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("%s - DISPATCH_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running journal commands
// (migrate, clear, failures, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
