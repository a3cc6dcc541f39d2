// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package sink submits event batches to the external append-only log
// service and classifies the outcome. The client is stateless with
// respect to sequences and watermarks: it neither reads nor writes
// bookkeeping state, so the shippers alone decide whether a batch
// outcome may advance anything.
//
// Outbound calls go through a gobreaker circuit breaker. A tripped
// breaker short-circuits to a retryable outcome, which aborts the current
// shipper run without advancing watermarks; the next scheduled run
// retries.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/metrics"
	"github.com/vardaops/logship/internal/models"
)

// Disposition classifies the outcome of one batch submission.
type Disposition int

const (
	// Accepted: all events durably accepted; bookkeeping may advance.
	Accepted Disposition = iota

	// Retryable: transport or transient server failure; the run aborts
	// and the next scheduled run retries from the committed watermark.
	Retryable

	// Fatal: the provider rejected the batch with a non-retryable error.
	// Same effect on bookkeeping as Retryable, logged at error level.
	Fatal
)

// String implements fmt.Stringer for logging and metrics labels.
func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Client submits one batch to a named stream.
type Client interface {
	PutEvents(ctx context.Context, stream string, events []models.LogEvent) (Disposition, error)
}

// BreakerConfig tunes the circuit breaker around the sink endpoint.
type BreakerConfig struct {
	// MaxRequests allowed through in half-open state.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval after which closed-state counters reset.
	Interval time.Duration `koanf:"interval"`

	// Timeout before an open breaker moves to half-open.
	Timeout time.Duration `koanf:"timeout"`

	// FailureThreshold is the consecutive-failure count that trips the
	// breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// Config holds sink client configuration.
type Config struct {
	// Endpoint is the base URL of the log service; the stream name is
	// appended as the final path segment.
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds one batch submission.
	Timeout time.Duration `koanf:"timeout"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// HTTPClient is the production sink client.
type HTTPClient struct {
	endpoint string
	hc       *http.Client
	breaker  *gobreaker.CircuitBreaker[int]
	log      zerolog.Logger
}

// NewHTTPClient creates a sink client for the given endpoint.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = time.Minute
	}

	log := logging.With().Str("component", "sink-client").Logger()

	settings := gobreaker.Settings{
		Name:        "log-sink",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Sink circuit breaker state changed")
		},
	}

	return &HTTPClient{
		endpoint: cfg.Endpoint,
		hc:       &http.Client{Timeout: cfg.Timeout},
		breaker:  gobreaker.NewCircuitBreaker[int](settings),
		log:      log,
	}
}

// putRequest is the wire body of one batch submission.
type putRequest struct {
	Events []models.LogEvent `json:"events"`
}

// retryableStatusError marks server-side statuses that count as breaker
// failures.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("sink returned status %d", e.status)
}

// PutEvents submits one batch to the named stream.
func (c *HTTPClient) PutEvents(ctx context.Context, stream string, events []models.LogEvent) (Disposition, error) {
	body, err := json.Marshal(putRequest{Events: events})
	if err != nil {
		return Fatal, fmt.Errorf("marshal batch for stream %s: %w", stream, err)
	}

	start := time.Now()
	status, err := c.breaker.Execute(func() (int, error) {
		return c.submit(ctx, stream, body)
	})
	metrics.SinkRequestDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())

	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		c.log.Warn().Str("stream", stream).Msg("Sink circuit breaker open, batch not submitted")
		return Retryable, fmt.Errorf("sink breaker open for stream %s: %w", stream, err)
	case err != nil:
		return Retryable, fmt.Errorf("submit batch to stream %s: %w", stream, err)
	}

	switch {
	case status >= 200 && status < 300:
		return Accepted, nil
	default:
		// Non-retryable provider rejection (4xx other than 408/429).
		return Fatal, fmt.Errorf("sink rejected batch for stream %s with status %d", stream, status)
	}
}

// submit performs one POST and returns the status code. Transport errors
// and retryable statuses are returned as errors so the breaker counts
// them as failures; permanent rejections return the status with nil
// error and are classified by the caller.
func (c *HTTPClient) submit(ctx context.Context, stream string, body []byte) (int, error) {
	target := c.endpoint + "/" + url.PathEscape(stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, &retryableStatusError{status: resp.StatusCode}
	}

	return resp.StatusCode, nil
}
