// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package store is the transactional store behind the shipping subsystem.
// It owns the bookkeeping tables (per-stream sequence state and per-feed
// watermarks), reads the event source tables (read accesses, the change
// journal, data accesses), and serves the operational-mail tables
// (organization registry, message targets, message log).
//
// The store runs on DuckDB through database/sql. Sequence and watermark
// writes that must become visible atomically share one transaction; see
// CommitBatch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // database/sql driver
)

// Config holds store configuration.
type Config struct {
	// Path is the DuckDB database file. ":memory:" is valid for tests.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, threads, maxMemory)

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	db.SetMaxOpenConns(runtime.NumCPU())
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// createSchema creates all tables and indexes if they do not exist.
// Statements run separately: DuckDB does not accept multi-statement Exec.
func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS log_state (
			stream TEXT PRIMARY KEY,
			log_seq BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watermarks (
			feed_key TEXT NOT NULL,
			organization TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (feed_key, organization)
		)`,
		`CREATE TABLE IF NOT EXISTS read_access_log (
			time_of_event TIMESTAMPTZ NOT NULL,
			username TEXT NOT NULL,
			path TEXT NOT NULL,
			query_params TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_read_access_time ON read_access_log (time_of_event)`,
		`CREATE TABLE IF NOT EXISTS change_journal (
			kind TEXT NOT NULL,
			entity_id BIGINT NOT NULL,
			op TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			actor TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_change_journal_kind_time ON change_journal (kind, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS data_access_log (
			ts TIMESTAMPTZ NOT NULL,
			user_oid TEXT NOT NULL,
			organization_oid TEXT NOT NULL,
			henkilo_oid TEXT NOT NULL,
			access_type TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_data_access_time ON data_access_log (ts)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			oid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_email TEXT NOT NULL DEFAULT '',
			municipal BOOLEAN NOT NULL DEFAULT false,
			top_level BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL,
			last_transfer_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS message_targets (
			organization_oid TEXT NOT NULL,
			email TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT 'fi',
			user_type TEXT NOT NULL DEFAULT '',
			UNIQUE (organization_oid, email)
		)`,
		`CREATE TABLE IF NOT EXISTS message_log (
			id TEXT PRIMARY KEY,
			class TEXT NOT NULL,
			organization_oid TEXT NOT NULL,
			email TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_log_lookup ON message_log (class, organization_oid, email, sent_at)`,
		`CREATE TABLE IF NOT EXISTS org_error_counts (
			organization_oid TEXT PRIMARY KEY,
			payment_errors INTEGER NOT NULL DEFAULT 0,
			relation_errors INTEGER NOT NULL DEFAULT 0,
			integrity_errors INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// Ping verifies the connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
