// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package heartbeat emits periodic liveness events to the "alive" stream.
//
// The heartbeat sequence and boot identity live in the shared runtime
// cache rather than the store: every application node increments the same
// counter, and a wiped cache is indistinguishable from a fresh boot. The
// first heartbeat after (re)initialization says "started", every later
// one says "alive". The sequence advances only when the sink accepts the
// event, so a sink outage repeats the same sequence number instead of
// skipping it.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/metrics"
	"github.com/vardaops/logship/internal/models"
	"github.com/vardaops/logship/internal/sink"
)

// Cache is the slice of the runtime cache the emitter uses.
type Cache interface {
	AliveSeq() (int64, bool, error)
	SetAliveSeq(seq int64) error
	BootTime() (time.Time, bool, error)
	SetBootTime(t time.Time) error
}

// Config holds the identity stamped on heartbeat envelopes.
type Config struct {
	Hostname    string
	Environment string
}

// Emitter sends one liveness event per invocation.
type Emitter struct {
	cache Cache
	sink  sink.Client
	cfg   Config

	now func() time.Time
}

// New creates a heartbeat emitter.
func New(cache Cache, sc sink.Client, cfg Config) *Emitter {
	return &Emitter{cache: cache, sink: sc, cfg: cfg, now: time.Now}
}

// Emit sends one heartbeat. A missing sequence or boot time means the
// cached boot identity is gone or torn, so both slots are reinitialized
// together: the boot time becomes the current time and the sequence
// restarts at zero.
func (e *Emitter) Emit(ctx context.Context) error {
	log := logging.With().Str("component", "heartbeat").Logger()
	now := e.now()

	seq, seqOK, err := e.cache.AliveSeq()
	if err != nil {
		return fmt.Errorf("read alive sequence: %w", err)
	}
	bootTime, bootOK, err := e.cache.BootTime()
	if err != nil {
		return fmt.Errorf("read boot time: %w", err)
	}
	if !seqOK || !bootOK {
		seq = 0
		bootTime = now
		if err := e.cache.SetAliveSeq(0); err != nil {
			return fmt.Errorf("seed alive sequence: %w", err)
		}
		if err := e.cache.SetBootTime(bootTime); err != nil {
			return fmt.Errorf("seed boot time: %w", err)
		}
	}

	message := models.AliveMessageAlive
	if seq == 0 {
		message = models.AliveMessageStarted
	}

	// The alive stream numbers from zero: the envelope carries the current
	// counter and the counter advances only after acceptance.
	bt := bootTime.Format(models.TimestampLayout)
	payload, err := json.Marshal(models.AliveEnvelope{
		Envelope: models.NewEnvelope(models.EventTypeAlive, seq, e.cfg.Hostname, e.cfg.Environment, now),
		BootTime: &bt,
		Message:  message,
	})
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	d, err := e.sink.PutEvents(ctx, models.StreamAlive, []models.LogEvent{{
		TimestampMS: models.ToMillis(now),
		Message:     string(payload),
	}})
	if d != sink.Accepted {
		// The sequence stays put; the next tick retries the same number.
		metrics.HeartbeatTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Int64("alive_seq", seq).Msg("Heartbeat not accepted")
		return fmt.Errorf("heartbeat not accepted: %w", err)
	}

	if err := e.cache.SetAliveSeq(seq + 1); err != nil {
		return fmt.Errorf("advance alive sequence: %w", err)
	}
	metrics.HeartbeatTotal.WithLabelValues("sent").Inc()
	log.Debug().Int64("alive_seq", seq+1).Str("message", message).Msg("Heartbeat sent")
	return nil
}
