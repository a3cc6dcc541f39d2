// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package shipper drains the event source tables into the external log
// sink. Three shippers share one engine: read accesses to stream "get",
// change-journal entries to per-kind "changed-<kind>" streams, and
// data accesses to stream "data-access".
//
// A run captures its upper bound once, then alternates chunked fetches,
// batch planning and sink submissions. Sequence numbers are assigned in
// memory before a batch is sent and persisted, together with the feed
// watermark, only after the sink accepts the batch. A rejected batch
// aborts the run; the committed state then describes exactly the batches
// the sink accepted, and the next scheduled run resumes from there.
//
// Shippers are not re-entrant per stream: the scheduler guarantees at
// most one concurrent run per task.
package shipper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vardaops/logship/internal/batch"
	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/metrics"
	"github.com/vardaops/logship/internal/models"
	"github.com/vardaops/logship/internal/sink"
)

// Store is the slice of the transactional store the shippers use.
type Store interface {
	LogSeq(ctx context.Context, stream string) (int64, error)
	Watermark(ctx context.Context, feedKey, organization string) (time.Time, bool, error)
	CommitBatch(ctx context.Context, stream, feedKey string, lastSeq int64, lastEventTime time.Time) error
	SetWatermark(ctx context.Context, feedKey, organization string, ts time.Time) error

	ReadAccesses(ctx context.Context, from, until time.Time, limit, offset int) ([]models.ReadAccess, error)
	JournalKinds(ctx context.Context) ([]string, error)
	Changes(ctx context.Context, kind string, from, until time.Time, createDeleteOnly bool, limit, offset int) ([]models.ChangeEntry, error)
	DataAccesses(ctx context.Context, after, until time.Time, limit, offset int) ([]models.DataAccess, error)
}

// BootTimeSource exposes the boot identity slot of the runtime cache.
// The data-access envelope carries it; nil-able because the heartbeat
// emitter may not have initialized the cache yet.
type BootTimeSource interface {
	BootTime() (time.Time, bool, error)
}

// Config holds the identity stamped on every envelope and the fetch
// chunk size.
type Config struct {
	Hostname    string
	Environment string

	// ChunkSize caps one source fetch; defaults to the batch count limit
	// so memory stays bounded at one provider-sized batch per fetch.
	ChunkSize int
}

// Engine runs the three shippers against one store and one sink.
type Engine struct {
	store Store
	sink  sink.Client
	boot  BootTimeSource
	cfg   Config

	// now is the clock; tests override it.
	now func() time.Time
}

// New creates a shipper engine.
func New(st Store, sc sink.Client, boot BootTimeSource, cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = batch.MaxCount
	}
	return &Engine{
		store: st,
		sink:  sc,
		boot:  boot,
		cfg:   cfg,
		now:   time.Now,
	}
}

// feedStart is the watermark assumed for a feed that has never shipped.
var feedStart = time.Unix(0, 0).UTC()

// record is one source row ready to become a sink event once its
// sequence number is known.
type record struct {
	at      time.Time
	marshal func(seq int64) ([]byte, error)
}

// fetchFunc returns up to limit records in the feed's window, ordered by
// ascending source time, skipping offset rows. The window low-bound
// semantics (inclusive for read accesses, exclusive for data accesses)
// live in the store queries.
type fetchFunc func(ctx context.Context, from, until time.Time, limit, offset int) ([]record, error)

// runFeed drains one feed into one stream.
func (e *Engine) runFeed(ctx context.Context, log zerolog.Logger, stream, feedKey string, fetch fetchFunc) error {
	log = log.With().Str("run_id", uuid.NewString()).Logger()
	datetimeEnd := e.now()

	from, ok, err := e.store.Watermark(ctx, feedKey, "")
	if err != nil {
		return err
	}
	if !ok {
		from = feedStart
	}

	seq, err := e.store.LogSeq(ctx, stream)
	if err != nil {
		return err
	}

	log.Debug().
		Time("from", from).
		Time("until", datetimeEnd).
		Int64("log_seq", seq).
		Msg("Shipper run started")

	shipped := 0
	offset := 0
	for {
		records, err := fetch(ctx, from, datetimeEnd, e.cfg.ChunkSize, offset)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}
		offset += len(records)

		events, seqs, times, err := e.buildEvents(log, stream, seq, records)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			seq = seqs[len(seqs)-1]
			n, err := e.submitBatches(ctx, log, stream, feedKey, events, seqs, times)
			shipped += n
			if err != nil {
				return err
			}
		}

		if len(records) < e.cfg.ChunkSize {
			break
		}
	}

	// Clean run: the next run starts at this run's upper bound even when
	// no events existed in the window.
	if err := e.store.SetWatermark(ctx, feedKey, "", datetimeEnd); err != nil {
		return err
	}

	log.Info().
		Int("events", shipped).
		Time("watermark", datetimeEnd).
		Msg("Shipper run finished")
	return nil
}

// buildEvents assigns sequence numbers and serializes envelopes. An
// event whose message cannot fit in a batch alone is a data error: it is
// reported and skipped without consuming a sequence number, so the
// stream stays gap-free.
func (e *Engine) buildEvents(log zerolog.Logger, stream string, seq int64, records []record) ([]models.LogEvent, []int64, []time.Time, error) {
	events := make([]models.LogEvent, 0, len(records))
	seqs := make([]int64, 0, len(records))
	times := make([]time.Time, 0, len(records))

	for _, r := range records {
		msg, err := r.marshal(seq + 1)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal event for stream %s: %w", stream, err)
		}
		if len(msg)+batch.PerEventOverhead > batch.MaxBytes {
			log.Error().
				Str("stream", stream).
				Time("source_time", r.at).
				Int("bytes", len(msg)).
				Msg("Event exceeds sink byte limit, skipped")
			continue
		}
		seq++
		events = append(events, models.LogEvent{
			TimestampMS: models.ToMillis(r.at),
			Message:     string(msg),
		})
		seqs = append(seqs, seq)
		times = append(times, r.at)
	}

	return events, seqs, times, nil
}

// submitBatches plans and submits events, committing bookkeeping after
// every accepted batch. It returns the number of accepted events; a
// non-accepted disposition stops the run with an error and no further
// bookkeeping.
func (e *Engine) submitBatches(ctx context.Context, log zerolog.Logger, stream, feedKey string, events []models.LogEvent, seqs []int64, times []time.Time) (int, error) {
	shipped := 0
	for s := 0; s < len(events); {
		end, err := batch.Plan(events, s)
		if err != nil {
			// Oversized events were filtered in buildEvents; this is an
			// invariant violation.
			return shipped, fmt.Errorf("plan batch for stream %s: %w", stream, err)
		}

		d, err := e.sink.PutEvents(ctx, stream, events[s:end])
		metrics.BatchesSubmitted.WithLabelValues(stream, d.String()).Inc()
		metrics.BatchSize.WithLabelValues(stream).Observe(float64(end - s))

		switch d {
		case sink.Accepted:
			if err := e.store.CommitBatch(ctx, stream, feedKey, seqs[end-1], times[end-1]); err != nil {
				return shipped, err
			}
			metrics.EventsShipped.WithLabelValues(stream).Add(float64(end - s))
			shipped += end - s
			s = end
		case sink.Fatal:
			log.Error().Err(err).
				Str("stream", stream).
				Int("batch_events", end-s).
				Msg("Sink rejected batch")
			return shipped, &sinkError{disposition: d, stream: stream, err: err}
		default:
			log.Warn().Err(err).
				Str("stream", stream).
				Int("batch_events", end-s).
				Msg("Transient sink failure, run aborted")
			return shipped, &sinkError{disposition: d, stream: stream, err: err}
		}
	}
	return shipped, nil
}

// sinkError is a run failure caused by a non-accepted sink disposition.
// The disposition is preserved so callers can tell a transient outage
// from a permanent rejection.
type sinkError struct {
	disposition sink.Disposition
	stream      string
	err         error
}

func (e *sinkError) Error() string {
	return fmt.Sprintf("sink returned %s for stream %s: %v", e.disposition, e.stream, e.err)
}

func (e *sinkError) Unwrap() error { return e.err }

// isTransient reports whether err stems from a retryable sink failure.
func isTransient(err error) bool {
	var se *sinkError
	return errors.As(err, &se) && se.disposition == sink.Retryable
}

// componentLogger builds the per-shipper child logger.
func componentLogger(component string) zerolog.Logger {
	return logging.With().Str("component", component).Logger()
}
