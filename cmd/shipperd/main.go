// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Command shipperd runs the audit-log shipping and operational health
// messaging subsystem: the shippers, the heartbeat emitter, the health
// mailer and the targets refresher, supervised under one tree with an
// operational HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vardaops/logship/internal/config"
	"github.com/vardaops/logship/internal/heartbeat"
	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/mailer"
	"github.com/vardaops/logship/internal/ops"
	"github.com/vardaops/logship/internal/runtimecache"
	"github.com/vardaops/logship/internal/scheduler"
	"github.com/vardaops/logship/internal/shipper"
	"github.com/vardaops/logship/internal/sink"
	"github.com/vardaops/logship/internal/store"
	"github.com/vardaops/logship/internal/supervisor"
	"github.com/vardaops/logship/internal/targets"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shipperd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Str("hostname", cfg.Hostname).
		Str("environment", cfg.Environment).
		Bool("primary", cfg.Primary).
		Msg("Starting shipperd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Closing store failed")
		}
	}()

	var cache *runtimecache.Cache
	if cfg.Cache.Path != "" {
		cache, err = runtimecache.Open(cfg.Cache.Path)
	} else {
		logging.Warn().Msg("No cache path configured, boot identity will not survive restarts")
		cache, err = runtimecache.OpenInMemory()
	}
	if err != nil {
		return fmt.Errorf("open runtime cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Closing runtime cache failed")
		}
	}()

	sinkClient := sink.NewHTTPClient(cfg.Sink)

	engine := shipper.New(st, sinkClient, cache, shipper.Config{
		Hostname:    cfg.Hostname,
		Environment: cfg.Environment,
	})
	emitter := heartbeat.New(cache, sinkClient, heartbeat.Config{
		Hostname:    cfg.Hostname,
		Environment: cfg.Environment,
	})
	healthMailer := mailer.New(st, mailer.NewSMTPSender(cfg.SMTP), cfg.Mail)
	refresher := targets.New(st, targets.NewIdentityClient(cfg.Identity))

	primary := func() bool { return cfg.Primary }

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddShippingService(scheduler.NewRunner(scheduler.Task{
		Name:       "read_access_shipper",
		Interval:   cfg.Cadence.Shippers,
		RunAtStart: true,
		Run:        engine.RunReadAccess,
	}, primary))
	tree.AddShippingService(scheduler.NewRunner(scheduler.Task{
		Name:       "change_history_shipper",
		Interval:   cfg.Cadence.Shippers,
		RunAtStart: true,
		Run:        engine.RunChangeHistory,
	}, primary))
	tree.AddShippingService(scheduler.NewRunner(scheduler.Task{
		Name:       "data_access_shipper",
		Interval:   cfg.Cadence.Shippers,
		RunAtStart: true,
		Run:        engine.RunDataAccess,
	}, primary))
	tree.AddShippingService(scheduler.NewRunner(scheduler.Task{
		Name:       "heartbeat",
		Interval:   cfg.Cadence.Heartbeat,
		RunAtStart: true,
		Run:        emitter.Emit,
	}, primary))

	tree.AddMailService(scheduler.NewRunner(scheduler.Task{
		Name:     "health_mailer",
		Interval: cfg.Cadence.Mailer,
		Run:      healthMailer.Run,
	}, primary))
	tree.AddMailService(scheduler.NewRunner(scheduler.Task{
		Name:       "targets_refresher",
		Interval:   cfg.Cadence.Refresher,
		RunAtStart: true,
		Run:        refresher.Run,
	}, primary))

	tree.AddOpsService(ops.NewServer(ops.Config{Addr: cfg.OpsAddr}, map[string]ops.Pinger{
		"store": ops.PingerFunc(st.Ping),
		"cache": ops.PingerFunc(func(context.Context) error { return cache.Ping() }),
	}))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
