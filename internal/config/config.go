// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package config loads the subsystem configuration from layered sources:
// built-in defaults, an optional YAML file and environment variables,
// with later layers overriding earlier ones.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/mailer"
	"github.com/vardaops/logship/internal/sink"
	"github.com/vardaops/logship/internal/store"
	"github.com/vardaops/logship/internal/targets"
)

// ConfigPathEnvVar names the environment variable pointing at the YAML
// config file.
const ConfigPathEnvVar = "LOGSHIP_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"logship.yaml",
	"/etc/logship/logship.yaml",
}

// Environment values accepted for the envelope environment field.
const (
	EnvironmentProduction = "production"
	EnvironmentTesting    = "testing"
)

// CadenceConfig holds the periodic task intervals.
type CadenceConfig struct {
	Shippers  time.Duration `koanf:"shippers"`
	Heartbeat time.Duration `koanf:"heartbeat"`
	Mailer    time.Duration `koanf:"mailer"`
	Refresher time.Duration `koanf:"refresher"`
}

// CacheConfig holds the runtime cache settings.
type CacheConfig struct {
	// Path is the on-disk cache directory; empty means in-memory, which
	// loses the boot identity on restart and is only for development.
	Path string `koanf:"path"`
}

// Config is the complete configuration of the shipping subsystem.
type Config struct {
	// Hostname is stamped on every envelope; defaults to os.Hostname.
	Hostname string `koanf:"hostname" validate:"required"`

	// Environment distinguishes production from testing envelopes.
	Environment string `koanf:"environment" validate:"required,oneof=production testing"`

	// Primary marks the one deployment node that runs periodic tasks.
	Primary bool `koanf:"primary"`

	Logging  logging.Config         `koanf:"logging"`
	Database store.Config           `koanf:"database"`
	Cache    CacheConfig            `koanf:"cache"`
	Sink     sink.Config            `koanf:"sink"`
	SMTP     mailer.SMTPConfig      `koanf:"smtp"`
	Mail     mailer.Config          `koanf:"mail"`
	Identity targets.IdentityConfig `koanf:"identity"`
	Cadence  CadenceConfig          `koanf:"cadence"`

	// OpsAddr is the listen address of the operational HTTP server.
	OpsAddr string `koanf:"ops_addr"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		Hostname:    hostname,
		Environment: EnvironmentTesting,
		Primary:     true,
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Database: store.Config{
			Path:      "logship.db",
			MaxMemory: "2GB",
		},
		Cache: CacheConfig{
			Path: "logship-cache",
		},
		Sink: sink.Config{
			Timeout: 30 * time.Second,
			Breaker: sink.BreakerConfig{
				MaxRequests:      1,
				Interval:         60 * time.Second,
				Timeout:          60 * time.Second,
				FailureThreshold: 5,
			},
		},
		SMTP: mailer.SMTPConfig{
			Port:    587,
			UseTLS:  true,
			Timeout: 30 * time.Second,
		},
		Identity: targets.IdentityConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			ContactChunkSize:  500,
		},
		Cadence: CadenceConfig{
			Shippers:  5 * time.Minute,
			Heartbeat: time.Minute,
			Mailer:    time.Hour,
			Refresher: 12 * time.Hour,
		},
		OpsAddr: ":9090",
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Sink.Endpoint == "" {
		return fmt.Errorf("invalid configuration: sink endpoint is required")
	}
	return nil
}
