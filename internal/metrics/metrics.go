// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the shipping subsystem:
// - batch submission outcomes and sizes per stream
// - sink request latency
// - operational mail outcomes per message class
// - heartbeat results
// - periodic task runs and durations

var (
	// Shipping metrics

	EventsShipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_events_shipped_total",
			Help: "Events durably accepted by the sink, per stream",
		},
		[]string{"stream"},
	)

	BatchesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_batches_submitted_total",
			Help: "Batch submissions by stream and disposition",
		},
		[]string{"stream", "disposition"},
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_batch_size_events",
			Help:    "Planned batch sizes in events",
			Buckets: []float64{1, 10, 100, 1000, 2500, 5000, 7500, 10000},
		},
		[]string{"stream"},
	)

	SinkRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_sink_request_duration_seconds",
			Help:    "Duration of sink batch submissions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	// Operational mail metrics

	MailSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_mail_sent_total",
			Help: "Operational emails sent, per message class",
		},
		[]string{"class"},
	)

	MailSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_mail_suppressed_total",
			Help: "Operational emails suppressed by the frequency limit",
		},
		[]string{"class"},
	)

	MailFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_mail_failed_total",
			Help: "Operational email SMTP failures, per message class",
		},
		[]string{"class"},
	)

	// Heartbeat metrics

	HeartbeatTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_heartbeat_total",
			Help: "Heartbeat emissions by result",
		},
		[]string{"result"},
	)

	// Targets refresher metrics

	MessageTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logship_message_targets",
			Help: "Message targets present after the last refresh",
		},
	)

	// Scheduler metrics

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logship_task_runs_total",
			Help: "Periodic task runs by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logship_task_duration_seconds",
			Help:    "Periodic task run durations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"task"},
	)
)
