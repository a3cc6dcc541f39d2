// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setRequiredEnv sets the values without which Validate fails.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SINK_ENDPOINT", "https://logs.example.test")
	t.Setenv("OPERATOR_EMAIL", "operator@example.test")
	t.Setenv("IDENTITY_BASE_URL", "https://identity.example.test")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Environment != EnvironmentTesting {
		t.Errorf("environment = %q, want testing default", cfg.Environment)
	}
	if cfg.Cadence.Shippers != 5*time.Minute {
		t.Errorf("shipper cadence = %v, want 5m", cfg.Cadence.Shippers)
	}
	if cfg.Cadence.Heartbeat != time.Minute {
		t.Errorf("heartbeat cadence = %v, want 1m", cfg.Cadence.Heartbeat)
	}
	if !cfg.Primary {
		t.Error("primary should default to true")
	}
	if cfg.Sink.Endpoint != "https://logs.example.test" {
		t.Errorf("sink endpoint = %q", cfg.Sink.Endpoint)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "logship.yaml")
	content := "environment: production\nlogging:\n  level: debug\nsmtp:\n  host: mail.example.test\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Environment != EnvironmentProduction {
		t.Errorf("environment = %q, want production from file", cfg.Environment)
	}
	if cfg.SMTP.Host != "mail.example.test" {
		t.Errorf("smtp host = %q, want value from file", cfg.SMTP.Host)
	}
	// Environment wins over the file.
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want env override", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "staging")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown environment value")
	}
}

func TestLoadRequiresSinkEndpoint(t *testing.T) {
	t.Setenv("OPERATOR_EMAIL", "operator@example.test")
	t.Setenv("IDENTITY_BASE_URL", "https://identity.example.test")
	t.Setenv("SINK_ENDPOINT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing sink endpoint")
	}
}

func TestIgnoresUnmappedEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PATH_INFO", "/should/not/leak")

	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
