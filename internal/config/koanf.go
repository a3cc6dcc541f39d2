// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration from three layers, later overriding
// earlier: built-in defaults, an optional YAML file, environment
// variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are ignored so unrelated process environment never
// leaks into the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"hostname":    "hostname",
		"environment": "environment",
		"primary":     "primary",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"cache_path": "cache.path",

		"sink_endpoint": "sink.endpoint",
		"sink_timeout":  "sink.timeout",

		"smtp_host":      "smtp.host",
		"smtp_port":      "smtp.port",
		"smtp_user":      "smtp.user",
		"smtp_password":  "smtp.password",
		"smtp_from":      "smtp.from",
		"smtp_from_name": "smtp.from_name",
		"smtp_use_tls":   "smtp.use_tls",

		"operator_email": "mail.operator_email",

		"identity_base_url":            "identity.base_url",
		"identity_requests_per_second": "identity.requests_per_second",

		"cadence_shippers":  "cadence.shippers",
		"cadence_heartbeat": "cadence.heartbeat",
		"cadence_mailer":    "cadence.mailer",
		"cadence_refresher": "cadence.refresher",

		"ops_addr": "ops_addr",
	}
	if mapped, ok := mappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
