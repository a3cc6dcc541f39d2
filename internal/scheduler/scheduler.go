// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package scheduler drives the periodic tasks: shippers, heartbeat,
// mailer and targets refresher.
//
// Each task gets its own Runner, a suture.Service with a ticker loop.
// The loop is sequential, so two invocations of the same task can never
// overlap; a run that outlasts its interval simply absorbs the missed
// ticks. A primary gate restricts periodic work to the one deployment
// node elected to run it.
//
// Task errors are logged and counted, never propagated: the next tick
// retries. A panicking task is recovered for the same reason.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/metrics"
)

// Task is one periodic unit of work.
type Task struct {
	// Name identifies the task in logs and metrics.
	Name string

	// Interval is the tick cadence.
	Interval time.Duration

	// RunAtStart triggers one invocation immediately on startup.
	RunAtStart bool

	// Run does the work. The error is logged, not propagated.
	Run func(ctx context.Context) error
}

// Runner executes one task on its cadence. It implements suture.Service.
type Runner struct {
	task Task

	// primary reports whether this node currently runs periodic tasks.
	// A nil gate means always primary.
	primary func() bool

	log zerolog.Logger
}

// NewRunner creates a runner for one task.
func NewRunner(task Task, primary func() bool) *Runner {
	return &Runner{
		task:    task,
		primary: primary,
		log:     logging.With().Str("component", "scheduler").Str("task", task.Name).Logger(),
	}
}

// String implements suture's service naming.
func (r *Runner) String() string {
	return "task-" + r.task.Name
}

// Serve runs the ticker loop until the context is canceled.
func (r *Runner) Serve(ctx context.Context) error {
	r.log.Info().Dur("interval", r.task.Interval).Msg("Task scheduled")

	ticker := time.NewTicker(r.task.Interval)
	defer ticker.Stop()

	if r.task.RunAtStart {
		r.execute(ctx)
	}

	for {
		select {
		case <-ticker.C:
			r.execute(ctx)
		case <-ctx.Done():
			r.log.Info().Msg("Task stopped")
			return ctx.Err()
		}
	}
}

// execute runs one invocation with panic recovery and metrics.
func (r *Runner) execute(ctx context.Context) {
	if r.primary != nil && !r.primary() {
		r.log.Debug().Msg("Not primary, tick skipped")
		metrics.TaskRuns.WithLabelValues(r.task.Name, "skipped").Inc()
		return
	}

	start := time.Now()
	err := r.runRecovered(ctx)
	metrics.TaskDuration.WithLabelValues(r.task.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TaskRuns.WithLabelValues(r.task.Name, "error").Inc()
		r.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Task run failed")
		return
	}
	metrics.TaskRuns.WithLabelValues(r.task.Name, "ok").Inc()
	r.log.Debug().Dur("elapsed", time.Since(start)).Msg("Task run finished")
}

func (r *Runner) runRecovered(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", r.task.Name, rec, debug.Stack())
		}
	}()
	return r.task.Run(ctx)
}
